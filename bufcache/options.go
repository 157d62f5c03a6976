package bufcache

import (
	"github.com/IvanBrykalov/bufcache/device"
)

// Defaults applied by New for zero-valued Options fields.
const (
	// DefaultShards is a small prime so that clustered block numbers spread
	// evenly even if the hash mixes poorly.
	DefaultShards = 13

	// DefaultBlockSize matches the classic 1 KiB file-system block.
	DefaultBlockSize = 1024
)

// AdmitKind tells how an admission obtained its buffer.
type AdmitKind int

const (
	// AdmitLocal — the home shard had an unreferenced buffer to recycle.
	AdmitLocal AdmitKind = iota
	// AdmitSteal — the buffer was taken from another shard.
	AdmitSteal
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Admit(kind AdmitKind)
	Exhausted()
	Size(resident int)
}

// Clock supplies recency ticks. Ticks values must be monotonically
// non-decreasing; they are compared only against each other to rank eviction
// candidates, never interpreted as wall time.
type Clock interface{ Ticks() uint64 }

// Options configures the cache. The pool geometry (Slots, Shards, BlockSize)
// is fixed at New and never changes afterwards.
//
// Zero values get defaults in New:
//   - Shards <= 0     => DefaultShards
//   - BlockSize <= 0  => DefaultBlockSize
//   - nil Metrics     => NoopMetrics
//   - nil Clock       => internal atomic tick counter
//
// Slots and Device are mandatory; New panics when they are missing, since a
// cache without a pool or a device cannot operate at all.
type Options struct {
	// Slots is the total number of block buffers in the pool.
	Slots int

	// Shards is the number of lock partitions. More shards reduce lock
	// contention; each holds roughly Slots/Shards buffers.
	Shards int

	// BlockSize is the size of every buffer in bytes.
	BlockSize int

	// Device performs the actual block I/O (read-through and write-through).
	Device device.Device

	// OnEvict is called when an admission overwrites a buffer that held
	// valid contents, with the displaced identity. It runs under the home
	// shard's lock; keep callbacks lightweight.
	OnEvict func(dev, blockno uint32, kind AdmitKind)

	// Metrics receives Hit/Miss/Admit/Exhausted/Size signals.
	Metrics Metrics

	// Clock overrides the recency tick source (tests). Nil => internal
	// counter.
	Clock Clock
}
