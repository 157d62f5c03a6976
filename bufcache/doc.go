// Package bufcache provides a bounded, sharded buffer cache sitting between
// a block device and the layers that consume disk blocks (file-system
// metadata, directory blocks, file data, journaling).
//
// Design
//
//   - Pool: a fixed set of block-sized buffers is allocated once in New and
//     recycled forever. Nothing is allocated on the lookup path.
//
//   - Sharding: buffers are partitioned across shards by a hash of the block
//     number, each shard guarded by its own mutex. Shard critical sections
//     touch only identity/refcount metadata and are short; device I/O and
//     content-lock waits never happen under a shard lock, so a slow read of
//     one block never stalls lookups of unrelated blocks.
//
//   - Eviction: within the home shard, admission reuses the unreferenced
//     buffer with the smallest recency tick (LRU by release time). When the
//     home shard has nothing evictable, the lookup steals the first
//     unreferenced buffer found in another shard. Stealing is serialized by
//     a single ordering lock and takes shard locks strictly one at a time,
//     so two concurrent steals cannot wait on each other's shards.
//
//   - Handles: Get and Read return a *Buf whose content lock is held by the
//     caller. Exactly one holder at a time may touch the contents or issue
//     I/O on them. Release drops the lock, decrements the refcount and
//     stamps the recency tick. Pin/Unpin adjust the refcount without taking
//     the content lock, keeping a buffer resident across logical operations.
//
//   - Errors: a full pool with every buffer referenced yields ErrNoBuffers
//     (the caller's reference accounting is broken or the pool is simply too
//     small; retrying cannot help). Write/Release on a handle whose content
//     lock is not held yield ErrNotLocked. Device errors propagate wrapped,
//     unretried.
//
// Basic usage
//
//	c := bufcache.New(bufcache.Options{
//	    Slots:  64,
//	    Device: device.NewMem(1024),
//	})
//
//	b, err := c.Read(0, 7) // locked handle, contents loaded
//	if err != nil {
//	    // ...
//	}
//	copy(b.Data(), payload)
//	if err := c.Write(b); err != nil {
//	    // ...
//	}
//	c.Release(b) // b must not be used afterwards
//
// Two concurrent lookups may each admit a fresh buffer for the same block if
// both miss before either finishes; the duplicate is unreferenced and gets
// recycled by a later admission. Callers serialize per-block access through
// the handle's content lock, not through the lookup itself.
package bufcache
