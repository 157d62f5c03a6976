package bufcache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/bufcache/device"
	"github.com/IvanBrykalov/bufcache/internal/util"
)

// pool is the cache implementation: a fixed arena of buffers partitioned
// across shards.
type pool struct {
	shards []*shard
	dev    device.Device
	opt    Options

	// steal serializes the cross-shard steal path. A lookup takes foreign
	// shard locks only while holding steal, and only one at a time, so two
	// concurrent steals can never wait on each other's shards.
	steal sync.Mutex

	resident atomic.Int64 // buffers currently holding valid contents

	admitsLocal util.PaddedAtomicUint64
	admitsSteal util.PaddedAtomicUint64
	exhausted   util.PaddedAtomicUint64
}

// New constructs a cache with the provided Options. The pool geometry is
// fixed for the lifetime of the cache; buffers are allocated once here and
// recycled forever.
//
// Panics when Slots <= 0 or Device is nil. Defaults:
//   - Shards <= 0    -> DefaultShards
//   - BlockSize <= 0 -> DefaultBlockSize
//   - nil Metrics    -> NoopMetrics
//   - nil Clock      -> internal atomic tick counter
func New(opt Options) Cache {
	if opt.Slots <= 0 {
		panic("Slots must be > 0")
	}
	if opt.Device == nil {
		panic("Device must not be nil")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Clock == nil {
		opt.Clock = new(tickCounter)
	}
	if opt.Shards <= 0 {
		opt.Shards = DefaultShards
	}
	if opt.BlockSize <= 0 {
		opt.BlockSize = DefaultBlockSize
	}

	p := &pool{
		shards: make([]*shard, opt.Shards),
		dev:    opt.Device,
		opt:    opt,
	}
	for i := range p.shards {
		p.shards[i] = &shard{}
	}

	// One backing array for the whole pool; each buffer gets a capped
	// block-size window. Buffers are dealt round-robin so every shard
	// starts with its share of candidates.
	backing := make([]byte, opt.Slots*opt.BlockSize)
	for i := 0; i < opt.Slots; i++ {
		lo, hi := i*opt.BlockSize, (i+1)*opt.BlockSize
		p.shards[i%len(p.shards)].link(&Buf{data: backing[lo:hi:hi]})
	}
	return p
}

// shardOf returns the home shard for a block number.
func (p *pool) shardOf(blockno uint32) *shard {
	return p.shards[util.ShardIndex(util.HashBlock(blockno), len(p.shards))]
}

// Get looks up (dev, blockno) and returns a locked handle. On a miss it
// recycles the least recently released buffer of the home shard, or steals
// one from another shard when the home shard has nothing unreferenced.
//
// Two callers racing through a miss for the same new block may each admit a
// distinct buffer; the loser's copy is unreferenced once released and gets
// recycled by a later admission. Serializing that would put the lookup path
// behind per-key coordination, which the design deliberately avoids.
func (p *pool) Get(dev, blockno uint32) (*Buf, error) {
	home := p.shardOf(blockno)

	home.mu.Lock()
	if b := home.find(dev, blockno); b != nil {
		b.refcnt++
		home.hits.Add(1)
		p.opt.Metrics.Hit()
		home.mu.Unlock()
		b.lock()
		return b, nil
	}
	home.misses.Add(1)
	p.opt.Metrics.Miss()

	if b := home.evictable(); b != nil {
		p.claim(b, dev, blockno, AdmitLocal)
		p.admitsLocal.Add(1)
		p.opt.Metrics.Admit(AdmitLocal)
		home.mu.Unlock()
		b.lock()
		return b, nil
	}
	home.mu.Unlock()

	// The home lock must be dropped before the steal lock is taken: a
	// concurrent stealer already holding the steal lock may want this shard
	// as its source, and waiting for the steal lock with home held would
	// close that cycle.
	b, err := p.stealFor(home, dev, blockno)
	if err != nil {
		return nil, err
	}
	b.lock()
	return b, nil
}

// stealFor walks the other shards in index order and claims the first
// unreferenced buffer for (dev, blockno), relinking it into home.
// Called with no shard lock held; shard locks are taken one at a time.
func (p *pool) stealFor(home *shard, dev, blockno uint32) (*Buf, error) {
	p.steal.Lock()
	defer p.steal.Unlock()

	var b *Buf
	for _, src := range p.shards {
		if src == home {
			continue
		}
		src.mu.Lock()
		b = src.takeFree()
		src.mu.Unlock()
		if b != nil {
			// Unlinked: no shard lists it, so no lookup can reach it until
			// it is linked into home below.
			break
		}
	}
	if b == nil {
		p.exhausted.Add(1)
		p.opt.Metrics.Exhausted()
		return nil, ErrNoBuffers
	}

	home.mu.Lock()
	home.link(b)
	p.claim(b, dev, blockno, AdmitSteal)
	p.admitsSteal.Add(1)
	p.opt.Metrics.Admit(AdmitSteal)
	home.mu.Unlock()
	return b, nil
}

// claim rebinds an unreferenced buffer to a new identity, reporting the
// displaced block if the old contents were valid. Caller holds the lock of
// the shard that owns (or is receiving) the buffer.
func (p *pool) claim(b *Buf, dev, blockno uint32, kind AdmitKind) {
	if b.valid {
		p.opt.Metrics.Size(int(p.resident.Add(-1)))
		if cb := p.opt.OnEvict; cb != nil {
			// Runs under the shard lock; keep callbacks lightweight.
			cb(b.dev, b.blockno, kind)
		}
	}
	b.dev = dev
	b.blockno = blockno
	b.valid = false
	b.refcnt = 1
}

// Read returns a locked handle with the block contents loaded, reading
// through to the device on first use.
func (p *pool) Read(dev, blockno uint32) (*Buf, error) {
	b, err := p.Get(dev, blockno)
	if err != nil {
		return nil, err
	}
	if !b.valid {
		if err := p.dev.ReadBlock(dev, blockno, b.data); err != nil {
			_ = p.Release(b)
			return nil, fmt.Errorf("bufcache: read dev %d block %d: %w", dev, blockno, err)
		}
		b.valid = true
		p.opt.Metrics.Size(int(p.resident.Add(1)))
	}
	return b, nil
}

// Write flushes the handle's contents to the device. After a successful
// write the buffer is valid even if it was admitted via Get and never read:
// the caller's bytes now ARE the on-device contents.
func (p *pool) Write(b *Buf) error {
	if !b.held.Load() {
		return ErrNotLocked
	}
	if err := p.dev.WriteBlock(b.dev, b.blockno, b.data); err != nil {
		return fmt.Errorf("bufcache: write dev %d block %d: %w", b.dev, b.blockno, err)
	}
	if !b.valid {
		b.valid = true
		p.opt.Metrics.Size(int(p.resident.Add(1)))
	}
	return nil
}

// Release drops the content lock and the reference, stamping the recency
// tick when the refcount reaches zero. The buffer must not be used by the
// caller afterwards.
func (p *pool) Release(b *Buf) error {
	if !b.held.Load() {
		return ErrNotLocked
	}
	// Identity is stable here: this handle still holds a reference, so the
	// home shard can be derived before the lock is dropped.
	home := p.shardOf(b.blockno)
	b.unlock()

	home.mu.Lock()
	b.refcnt--
	if b.refcnt == 0 {
		b.ticks = p.opt.Clock.Ticks()
	}
	home.mu.Unlock()
	return nil
}

// Pin takes an extra reference without touching the content lock. The caller
// must already hold a reference (a live handle or a prior Pin), which is
// what keeps the identity stable while the shard is derived.
func (p *pool) Pin(b *Buf) {
	home := p.shardOf(b.blockno)
	home.mu.Lock()
	b.refcnt++
	home.mu.Unlock()
}

// Unpin drops a reference taken by Pin.
func (p *pool) Unpin(b *Buf) {
	home := p.shardOf(b.blockno)
	home.mu.Lock()
	b.refcnt--
	if b.refcnt == 0 {
		b.ticks = p.opt.Clock.Ticks()
	}
	home.mu.Unlock()
}

// Len returns the number of buffers with valid contents.
func (p *pool) Len() int { return int(p.resident.Load()) }

// Stats aggregates the per-shard and pool-level counters.
func (p *pool) Stats() Stats {
	st := Stats{
		AdmitLocal: p.admitsLocal.Load(),
		AdmitSteal: p.admitsSteal.Load(),
		Exhausted:  p.exhausted.Load(),
	}
	for _, s := range p.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
	}
	return st
}
