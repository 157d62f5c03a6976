package bufcache

// Cache is a fixed-pool, sharded block buffer cache.
// All methods are safe for concurrent use by multiple goroutines.
type Cache interface {
	// Get returns a locked handle for (dev, blockno), admitting a buffer if
	// the block is not resident. The contents are NOT loaded: a handle whose
	// buffer was just admitted holds stale bytes until Read fills it or the
	// caller overwrites the whole block and calls Write. Blocks until the
	// buffer's content lock is acquired. Fails only with ErrNoBuffers.
	Get(dev, blockno uint32) (*Buf, error)

	// Read is Get plus read-through: on first use the contents are filled
	// from the device. On a device error the handle is released internally
	// and the error is returned wrapped.
	Read(dev, blockno uint32) (*Buf, error)

	// Write flushes the handle's current contents to the device.
	// Returns ErrNotLocked if the handle's content lock is not held.
	Write(b *Buf) error

	// Release drops the content lock and the reference taken by Get/Read.
	// The buffer becomes an eviction candidate once its refcount reaches
	// zero. Using b after Release is a contract violation.
	Release(b *Buf) error

	// Pin takes an extra reference on a held buffer without touching its
	// content lock, keeping it resident across logical operations
	// (a journaling layer pins blocks between transaction begin and commit).
	Pin(b *Buf)

	// Unpin drops a reference taken by Pin.
	Unpin(b *Buf)

	// Len returns the number of buffers currently holding valid block
	// contents.
	Len() int

	// Stats returns cumulative counters aggregated across shards.
	Stats() Stats
}

// Stats is a point-in-time aggregate of the cache's counters.
type Stats struct {
	Hits       int64
	Misses     int64
	AdmitLocal uint64 // admissions satisfied inside the home shard
	AdmitSteal uint64 // admissions that stole a buffer from another shard
	Exhausted  uint64 // lookups that failed with ErrNoBuffers
}
