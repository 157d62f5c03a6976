// Package device defines the block-device collaborator of the buffer cache
// and provides two implementations: a RAM-backed device for tests, examples
// and benchmarks, and a file-backed device for real on-disk storage.
package device

// Device performs synchronous block I/O on behalf of the cache.
//
// Both calls block until the transfer completes or the device reports an
// error; there is no cancellation. The cache issues at most one call at a
// time per block (it holds the buffer's content lock across the call), but
// calls for distinct blocks may arrive concurrently, so implementations must
// be safe for concurrent use.
type Device interface {
	// ReadBlock fills p with the contents of block blockno on device dev.
	// len(p) is the cache's block size.
	ReadBlock(dev, blockno uint32, p []byte) error

	// WriteBlock persists p as the contents of block blockno on device dev.
	WriteBlock(dev, blockno uint32, p []byte) error
}
