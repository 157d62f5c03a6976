package bufcache

import (
	"sync"

	"github.com/IvanBrykalov/bufcache/internal/util"
)

// shard is an independent partition of the pool with its own lock and
// membership list. A buffer belongs to exactly one shard at any instant;
// it changes shards only on the steal path.
//
// The shard lock is a fast lock in the two-level scheme: critical sections
// under it are short metadata updates, never device I/O or a content-lock
// acquisition.
type shard struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	bufs []*Buf // membership; scans are over the whole (small) slice

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
}

// find returns the resident buffer for (dev, blockno), or nil.
// Caller holds mu.
func (s *shard) find(dev, blockno uint32) *Buf {
	for _, b := range s.bufs {
		if b.dev == dev && b.blockno == blockno {
			return b
		}
	}
	return nil
}

// evictable returns the unreferenced buffer with the smallest recency tick,
// or nil if every buffer is referenced. The buffer stays in the shard; the
// caller overwrites its identity in place. Caller holds mu.
func (s *shard) evictable() *Buf {
	var victim *Buf
	for _, b := range s.bufs {
		if b.refcnt != 0 {
			continue
		}
		if victim == nil || b.ticks < victim.ticks {
			victim = b
		}
	}
	return victim
}

// takeFree unlinks and returns the first unreferenced buffer, or nil.
// No recency comparison: the steal path trades LRU precision for not having
// to rank candidates across shards. Caller holds mu.
func (s *shard) takeFree() *Buf {
	for i, b := range s.bufs {
		if b.refcnt == 0 {
			last := len(s.bufs) - 1
			s.bufs[i] = s.bufs[last]
			s.bufs[last] = nil
			s.bufs = s.bufs[:last]
			return b
		}
	}
	return nil
}

// link adds a buffer to the shard's membership. Caller holds mu.
func (s *shard) link(b *Buf) {
	s.bufs = append(s.bufs, b)
}
