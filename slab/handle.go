package slab

import "sync/atomic"

// Handle is the opaque (slab, slot, size_class, slab_version) tuple
// returned by allocate and required by free.
type Handle struct {
	slab    *Slab
	slot    int
	class   int
	version uint64
}

// Class reports the size-class index a handle was allocated from.
func (h Handle) Class() int { return h.class }

// valid reports whether h still refers to a live allocation: magic intact,
// version matches (no intervening recycle), size class matches, and the
// slot index is in range. Any mismatch means no memory is read or written.
func (h Handle) valid() bool {
	if h.slab == nil {
		return false
	}
	if atomic.LoadUint32(&h.slab.magic) != slabMagic {
		return false
	}
	if atomic.LoadUint64(&h.slab.version) != h.version {
		return false
	}
	if h.class != h.slab.class.index {
		return false
	}
	if h.slot < 0 || int32(h.slot) >= h.slab.objectCount {
		return false
	}
	return true
}
