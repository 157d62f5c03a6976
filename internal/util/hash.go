// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// HashBlock hashes a 32-bit block number with 64-bit FNV-1a.
// Block numbers handed down by a file-system layer cluster heavily
// (sequential allocation, metadata regions), so a bare modulo would load
// adjacent shards unevenly; mixing through FNV spreads them out.
func HashBlock(blockno uint32) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < 4; i++ {
		h ^= uint64(byte(blockno))
		h *= fnvPrime64
		blockno >>= 8
	}
	return h
}
