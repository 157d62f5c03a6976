package bufcache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/IvanBrykalov/bufcache/device"
	"github.com/IvanBrykalov/bufcache/internal/util"
	"golang.org/x/sync/errgroup"
)

// fakeClock is a manually driven Clock to make recency deterministic.
type fakeClock struct{ t uint64 }

func (f *fakeClock) Ticks() uint64 { return f.t }

const testBlockSize = 64

func newTestCache(t *testing.T, slots, shards int) (Cache, *device.MemDevice) {
	t.Helper()
	dev := device.NewMem(testBlockSize)
	c := New(Options{
		Slots:     slots,
		Shards:    shards,
		BlockSize: testBlockSize,
		Device:    dev,
	})
	return c, dev
}

// blocksInShard returns n distinct block numbers that all map to the given
// shard, skipping block 0 (pristine buffers carry the zero identity).
func blocksInShard(t *testing.T, shards, shard, n int) []uint32 {
	t.Helper()
	var out []uint32
	for b := uint32(1); len(out) < n; b++ {
		if util.ShardIndex(util.HashBlock(b), shards) == shard {
			out = append(out, b)
		}
	}
	return out
}

// Read-through loads from the device once; subsequent lookups are hits.
func TestCache_ReadThrough(t *testing.T) {
	t.Parallel()

	c, dev := newTestCache(t, 8, 2)

	want := bytes.Repeat([]byte{0xAB}, testBlockSize)
	if err := dev.WriteBlock(0, 5, want); err != nil {
		t.Fatal(err)
	}

	b, err := c.Read(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b.Data(), want) {
		t.Fatalf("read-through contents mismatch")
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}

	b, err = c.Read(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release(b)

	// Exactly one device read: the first fill. The second lookup is a hit.
	if reads, _ := dev.Counts(); reads != 1 {
		t.Fatalf("device reads = %d, want 1", reads)
	}
}

// Same block, sequential handles: both land on the same buffer and see each
// other's bytes (dedup).
func TestCache_DedupSameSlot(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 8, 2)

	b1, err := c.Get(1, 42)
	if err != nil {
		t.Fatal(err)
	}
	copy(b1.Data(), "written by first holder")
	if err := c.Write(b1); err != nil {
		t.Fatal(err)
	}
	if err := c.Release(b1); err != nil {
		t.Fatal(err)
	}

	b2, err := c.Read(1, 42)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release(b2)

	if b2 != b1 {
		t.Fatal("second lookup must return the same buffer")
	}
	if !bytes.HasPrefix(b2.Data(), []byte("written by first holder")) {
		t.Fatal("contents lost between handles")
	}
}

// Write/evict/re-read round trip: bytes survive through the device.
func TestCache_WriteEvictReadBack(t *testing.T) {
	t.Parallel()

	// Single shard and a tiny pool so admissions recycle aggressively.
	c, _ := newTestCache(t, 2, 1)

	b, err := c.Get(0, 100)
	if err != nil {
		t.Fatal(err)
	}
	copy(b.Data(), "persist me")
	if err := c.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}

	// Flood the pool so block 100 gets evicted.
	for blk := uint32(200); blk < 204; blk++ {
		h, err := c.Read(0, blk)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Release(h); err != nil {
			t.Fatal(err)
		}
	}

	b, err = c.Read(0, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Release(b)
	if !bytes.HasPrefix(b.Data(), []byte("persist me")) {
		t.Fatal("round trip through the device lost the contents")
	}
}

// In-shard LRU: with two evictable buffers, admission reuses the one with
// the smaller recency tick.
func TestCache_RecencyLRU(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	dev := device.NewMem(testBlockSize)
	c := New(Options{
		Slots:     2,
		Shards:    1,
		BlockSize: testBlockSize,
		Device:    dev,
		Clock:     clk,
	})

	a, err := c.Read(0, 11)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Read(0, 22)
	if err != nil {
		t.Fatal(err)
	}

	clk.t = 10
	if err := c.Release(a); err != nil { // block 11 released first (older)
		t.Fatal(err)
	}
	clk.t = 20
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}

	// Admission must recycle block 11's buffer.
	h, err := c.Read(0, 33)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(h); err != nil {
		t.Fatal(err)
	}

	readsBefore, _ := dev.Counts()
	h, err = c.Read(0, 22) // must still be resident
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(h); err != nil {
		t.Fatal(err)
	}
	if reads, _ := dev.Counts(); reads != readsBefore {
		t.Fatal("block 22 was evicted; LRU picked the wrong victim")
	}

	h, err = c.Read(0, 11) // must have been evicted
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(h); err != nil {
		t.Fatal(err)
	}
	if reads, _ := dev.Counts(); reads != readsBefore+1 {
		t.Fatal("block 11 was still resident; LRU picked the wrong victim")
	}
}

// A pinned buffer is never chosen for eviction, even under admission
// pressure; after Unpin it becomes a candidate again.
func TestCache_PinBlocksEviction(t *testing.T) {
	t.Parallel()

	c, dev := newTestCache(t, 2, 1)

	b, err := c.Read(0, 7)
	if err != nil {
		t.Fatal(err)
	}
	c.Pin(b)
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}

	// Pressure: more admissions than the pool holds.
	for blk := uint32(100); blk < 110; blk++ {
		h, err := c.Read(0, blk)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Release(h); err != nil {
			t.Fatal(err)
		}
	}

	readsBefore, _ := dev.Counts()
	h, err := c.Read(0, 7)
	if err != nil {
		t.Fatal(err)
	}
	if reads, _ := dev.Counts(); reads != readsBefore {
		t.Fatal("pinned block was evicted")
	}
	c.Unpin(h)
	if err := c.Release(h); err != nil {
		t.Fatal(err)
	}
}

// The scenario from the cache's sizing contract: a 4-slot/2-shard pool where
// the home shard still has candidates admits locally; once every other
// buffer is held, admission into a full shard must steal, and with nothing
// stealable it reports exhaustion.
func TestCache_StealAndExhaustion(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 4, 2)
	p := c.(*pool)

	s0 := blocksInShard(t, 2, 0, 3)
	s1 := blocksInShard(t, 2, 1, 2)

	// Hold shard 0's two buffers and shard 1's two buffers.
	h00, err := c.Get(0, s0[0])
	if err != nil {
		t.Fatal(err)
	}
	h01, err := c.Get(0, s0[1])
	if err != nil {
		t.Fatal(err)
	}
	h10, err := c.Get(0, s1[0])
	if err != nil {
		t.Fatal(err)
	}
	h11, err := c.Get(0, s1[1])
	if err != nil {
		t.Fatal(err)
	}

	// Every buffer referenced: admission anywhere must fail.
	if _, err := c.Get(0, s0[2]); !errors.Is(err, ErrNoBuffers) {
		t.Fatalf("want ErrNoBuffers, got %v", err)
	}
	if st := c.Stats(); st.Exhausted != 1 {
		t.Fatalf("Exhausted = %d, want 1", st.Exhausted)
	}

	// Free one buffer in shard 1; the shard-0 admission must now steal it.
	if err := c.Release(h10); err != nil {
		t.Fatal(err)
	}
	h, err := c.Get(0, s0[2])
	if err != nil {
		t.Fatal(err)
	}
	if st := c.Stats(); st.AdmitSteal != 1 {
		t.Fatalf("AdmitSteal = %d, want 1", st.AdmitSteal)
	}

	// The stolen buffer changed shards: 3 in shard 0, 1 in shard 1.
	p.shards[0].mu.Lock()
	n0 := len(p.shards[0].bufs)
	p.shards[0].mu.Unlock()
	p.shards[1].mu.Lock()
	n1 := len(p.shards[1].bufs)
	p.shards[1].mu.Unlock()
	if n0 != 3 || n1 != 1 {
		t.Fatalf("shard sizes after steal = %d/%d, want 3/1", n0, n1)
	}

	for _, hh := range []*Buf{h00, h01, h11, h} {
		if err := c.Release(hh); err != nil {
			t.Fatal(err)
		}
	}

	// A failed admission leaves no residue: the pool fully recovers.
	for blk := uint32(1); blk <= 4; blk++ {
		hh, err := c.Get(7, blk)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Release(hh); err != nil {
			t.Fatal(err)
		}
	}
}

// OnEvict reports the displaced identity when a valid buffer is recycled.
func TestCache_OnEvict(t *testing.T) {
	t.Parallel()

	type evicted struct {
		dev, blockno uint32
		kind         AdmitKind
	}
	var got []evicted

	c := New(Options{
		Slots:     1,
		Shards:    1,
		BlockSize: testBlockSize,
		Device:    device.NewMem(testBlockSize),
		OnEvict: func(dev, blockno uint32, kind AdmitKind) {
			got = append(got, evicted{dev, blockno, kind})
		},
	})

	b, err := c.Read(3, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatal("admitting into an invalid buffer must not report an eviction")
	}

	b, err = c.Read(3, 20) // displaces block 10
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != (evicted{3, 10, AdmitLocal}) {
		t.Fatalf("evictions = %+v, want [{3 10 local}]", got)
	}
}

// Write and Release demand a held content lock.
func TestCache_ProtocolViolations(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 4, 2)

	b, err := c.Get(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}

	if err := c.Write(b); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("Write after Release: want ErrNotLocked, got %v", err)
	}
	if err := c.Release(b); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("double Release: want ErrNotLocked, got %v", err)
	}
}

// Device failures propagate wrapped and do not leak the reference.
func TestCache_DeviceErrorPropagates(t *testing.T) {
	t.Parallel()

	c, dev := newTestCache(t, 4, 2)
	p := c.(*pool)

	boom := errors.New("boom")
	dev.FailWith(boom)

	if _, err := c.Read(0, 9); !errors.Is(err, boom) {
		t.Fatalf("want wrapped device error, got %v", err)
	}

	// The admitted buffer must have been released: total refcount is zero.
	total := 0
	for _, s := range p.shards {
		s.mu.Lock()
		for _, b := range s.bufs {
			total += b.refcnt
		}
		s.mu.Unlock()
	}
	if total != 0 {
		t.Fatalf("refcount leaked after device error: %d", total)
	}

	dev.FailWith(nil)
	b, err := c.Read(0, 9)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}
}

// Len tracks valid buffers through fills and evictions.
func TestCache_Len(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 4, 2)

	if c.Len() != 0 {
		t.Fatalf("empty cache Len = %d", c.Len())
	}
	b, err := c.Read(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len after one fill = %d, want 1", c.Len())
	}
	if err := c.Release(b); err != nil {
		t.Fatal(err)
	}
}

// Concurrent readers of one block all converge on the writer's bytes.
func TestCache_ConcurrentConvergence(t *testing.T) {
	t.Parallel()

	c, dev := newTestCache(t, 16, 4)

	want := bytes.Repeat([]byte{0x5A}, testBlockSize)
	if err := dev.WriteBlock(0, 77, want); err != nil {
		t.Fatal(err)
	}

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			b, err := c.Read(0, 77)
			if err != nil {
				return err
			}
			defer c.Release(b)
			if !bytes.Equal(b.Data(), want) {
				return errors.New("reader observed partial contents")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
