package device

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemDevice_ZeroFill(t *testing.T) {
	t.Parallel()

	d := NewMem(32)
	p := bytes.Repeat([]byte{0xFF}, 32)
	if err := d.ReadBlock(0, 9, p); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, make([]byte, 32)) {
		t.Fatal("unwritten block must read as zeroes")
	}
}

func TestMemDevice_RoundTrip(t *testing.T) {
	t.Parallel()

	d := NewMem(32)
	in := bytes.Repeat([]byte{0x42}, 32)
	if err := d.WriteBlock(3, 7, in); err != nil {
		t.Fatal(err)
	}

	// The device stores a copy, not the caller's slice.
	in[0] = 0

	out := make([]byte, 32)
	if err := d.ReadBlock(3, 7, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 0x42 {
		t.Fatal("device must not alias the writer's buffer")
	}

	if reads, writes := d.Counts(); reads != 1 || writes != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", reads, writes)
	}
}

func TestMemDevice_ShortBuffer(t *testing.T) {
	t.Parallel()

	d := NewMem(32)
	if err := d.ReadBlock(0, 0, make([]byte, 16)); err == nil {
		t.Fatal("short read buffer must be rejected")
	}
	if err := d.WriteBlock(0, 0, make([]byte, 64)); err == nil {
		t.Fatal("oversized write buffer must be rejected")
	}
}

func TestMemDevice_FailureInjection(t *testing.T) {
	t.Parallel()

	d := NewMem(32)
	boom := errors.New("boom")
	d.FailWith(boom)

	p := make([]byte, 32)
	if err := d.ReadBlock(0, 0, p); !errors.Is(err, boom) {
		t.Fatalf("want injected error, got %v", err)
	}
	if err := d.WriteBlock(0, 0, p); !errors.Is(err, boom) {
		t.Fatalf("want injected error, got %v", err)
	}

	d.FailWith(nil)
	if err := d.WriteBlock(0, 0, p); err != nil {
		t.Fatalf("device must recover after clearing the injection: %v", err)
	}

	// Failed operations are not counted.
	if reads, writes := d.Counts(); reads != 0 || writes != 1 {
		t.Fatalf("counts = %d/%d, want 0/1", reads, writes)
	}
}
