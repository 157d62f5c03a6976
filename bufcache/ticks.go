package bufcache

import "sync/atomic"

// tickCounter is the default Clock: a process-wide monotonic counter that
// advances on every observation. Recency ticks only need a total order among
// release events, not wall time, so a bare atomic increment is enough and
// never goes backwards.
type tickCounter struct{ n atomic.Uint64 }

func (t *tickCounter) Ticks() uint64 { return t.n.Add(1) }

var _ Clock = (*tickCounter)(nil)
