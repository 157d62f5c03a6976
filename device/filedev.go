package device

import (
	"fmt"
	"os"
)

// FileDevice is a Device backed by a flat file: block n lives at byte offset
// n*blockSize. It serves exactly one device number; a cache layered over
// several devices mounts one FileDevice per backing file behind a mux.
//
// ReadAt/WriteAt are safe for concurrent use on an *os.File, so FileDevice
// needs no lock of its own.
type FileDevice struct {
	f       *os.File
	dev     uint32
	bsize   int
	nblocks uint32
}

// OpenFile opens (or creates) the backing file and sizes it to the full
// geometry, so every block within range is readable from the start.
func OpenFile(path string, dev uint32, blockSize int, nblocks uint32) (*FileDevice, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("filedev: block size %d", blockSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filedev: open %s: %w", path, err)
	}
	size := int64(blockSize) * int64(nblocks)
	if fi, err := f.Stat(); err != nil {
		f.Close()
		return nil, fmt.Errorf("filedev: stat %s: %w", path, err)
	} else if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("filedev: size %s to %d: %w", path, size, err)
		}
	}
	return &FileDevice{f: f, dev: dev, bsize: blockSize, nblocks: nblocks}, nil
}

func (d *FileDevice) check(dev, blockno uint32, p []byte) error {
	if dev != d.dev {
		return fmt.Errorf("filedev: unknown device %d (serving %d)", dev, d.dev)
	}
	if blockno >= d.nblocks {
		return fmt.Errorf("filedev: block %d out of range (%d blocks)", blockno, d.nblocks)
	}
	if len(p) != d.bsize {
		return fmt.Errorf("filedev: short buffer: got %d, block size %d", len(p), d.bsize)
	}
	return nil
}

// ReadBlock reads one block at its fixed file offset.
func (d *FileDevice) ReadBlock(dev, blockno uint32, p []byte) error {
	if err := d.check(dev, blockno, p); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(p, int64(blockno)*int64(d.bsize)); err != nil {
		return fmt.Errorf("filedev: read block %d: %w", blockno, err)
	}
	return nil
}

// WriteBlock writes one block at its fixed file offset.
func (d *FileDevice) WriteBlock(dev, blockno uint32, p []byte) error {
	if err := d.check(dev, blockno, p); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(p, int64(blockno)*int64(d.bsize)); err != nil {
		return fmt.Errorf("filedev: write block %d: %w", blockno, err)
	}
	return nil
}

// Sync flushes the backing file to stable storage.
func (d *FileDevice) Sync() error { return d.f.Sync() }

// Close closes the backing file.
func (d *FileDevice) Close() error { return d.f.Close() }

var _ Device = (*FileDevice)(nil)
