package device

import (
	"fmt"
	"sync"
)

type blockKey struct {
	dev     uint32
	blockno uint32
}

// MemDevice is a RAM-backed Device. Blocks that were never written read as
// zeroes, like a freshly created disk image. It also counts operations and
// can be told to fail, which tests use to exercise the cache's error
// propagation.
type MemDevice struct {
	mu     sync.Mutex
	blocks map[blockKey][]byte
	bsize  int

	reads  int
	writes int
	err    error // injected; returned by every operation until cleared
}

// NewMem creates a RAM-backed device with the given block size.
func NewMem(blockSize int) *MemDevice {
	if blockSize <= 0 {
		panic("device: blockSize must be > 0")
	}
	return &MemDevice{
		blocks: make(map[blockKey][]byte),
		bsize:  blockSize,
	}
}

// ReadBlock copies the stored block into p, or zero-fills p if the block was
// never written.
func (d *MemDevice) ReadBlock(dev, blockno uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}
	if len(p) != d.bsize {
		return fmt.Errorf("memdev: short buffer: got %d, block size %d", len(p), d.bsize)
	}
	d.reads++
	if blk, ok := d.blocks[blockKey{dev, blockno}]; ok {
		copy(p, blk)
		return nil
	}
	for i := range p {
		p[i] = 0
	}
	return nil
}

// WriteBlock stores a copy of p as the block's contents.
func (d *MemDevice) WriteBlock(dev, blockno uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}
	if len(p) != d.bsize {
		return fmt.Errorf("memdev: short buffer: got %d, block size %d", len(p), d.bsize)
	}
	d.writes++
	blk := make([]byte, d.bsize)
	copy(blk, p)
	d.blocks[blockKey{dev, blockno}] = blk
	return nil
}

// FailWith makes every subsequent operation return err until FailWith(nil).
func (d *MemDevice) FailWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Counts returns the number of successful reads and writes performed.
func (d *MemDevice) Counts() (reads, writes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads, d.writes
}

var _ Device = (*MemDevice)(nil)
