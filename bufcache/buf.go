package bufcache

import (
	"sync"
	"sync/atomic"
)

// Buf is one fixed-size slot of the pool. A Buf returned by Get/Read is a
// handle: its content lock is held by the caller until Release, and only the
// holder may touch data or issue device I/O on it.
type Buf struct {
	// mu is the content lock. It is a true blocking lock (a waiter parks
	// until the holder releases) and is only ever acquired after all shard
	// locks of the operation have been dropped, so I/O latency on one block
	// never extends a shard critical section.
	mu sync.Mutex

	// held mirrors mu for protocol-violation detection: Write/Release check
	// it instead of silently corrupting an unlocked buffer. It catches the
	// unheld case, not a handle leaked to the wrong goroutine.
	held atomic.Bool

	// data is a block-size window into the pool's backing array.
	data []byte

	// The fields below are guarded by the lock of the shard that currently
	// owns this buffer. Identity (dev, blockno) is stable while refcnt > 0,
	// which is what lets handle holders read it without the shard lock.
	dev     uint32
	blockno uint32
	valid   bool   // data reflects the on-device contents
	refcnt  int    // active handles plus pins; 0 => eviction candidate
	ticks   uint64 // recency stamp, meaningful only while refcnt == 0
}

// Data returns the block contents. The slice is valid to read or mutate only
// while the handle is held; after Release it aliases whatever block the
// buffer is recycled for.
func (b *Buf) Data() []byte { return b.data }

// Dev returns the device number the buffer is bound to.
func (b *Buf) Dev() uint32 { return b.dev }

// Blockno returns the block number the buffer is bound to.
func (b *Buf) Blockno() uint32 { return b.blockno }

// lock acquires the content lock, blocking until the current holder (if any)
// releases. Called with no shard lock held.
func (b *Buf) lock() {
	b.mu.Lock()
	b.held.Store(true)
}

// unlock drops the content lock. Callers must have verified held.
func (b *Buf) unlock() {
	b.held.Store(false)
	b.mu.Unlock()
}
