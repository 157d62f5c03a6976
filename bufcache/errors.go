package bufcache

import "errors"

var (
	// ErrNoBuffers is returned by Get/Read when every buffer in the pool is
	// referenced and no shard can yield an eviction candidate. This is a
	// configuration or accounting fault, not a transient condition: no
	// amount of retrying helps until some holder releases.
	ErrNoBuffers = errors.New("bufcache: no evictable buffers")

	// ErrNotLocked is returned by Write/Release when the handle's content
	// lock is not held. This is a protocol violation by the caller and is
	// never silently ignored.
	ErrNotLocked = errors.New("bufcache: buffer handle not locked")
)
