package slab

import "sync/atomic"

// slabMagic is the fixed sentinel stamped into every live slab; a free's
// handle validation rejects anything that doesn't match it.
const slabMagic uint32 = 0x5a4c4142 // "ZLAB"

type listID uint8

const (
	listNone listID = iota
	listPartial
	listFull
)

// Slab is a page-aligned region holding N equally-sized slots plus a
// header and a bitmap. The header/bitmap are modeled as typed Go fields
// rather than hand-packed into the raw page bytes — the raw region from
// PageHost.Map backs only the object slots. This keeps slot access
// memory-safe without unsafe struct overlay while preserving every
// transition rule; see DESIGN.md.
type Slab struct {
	magic       uint32 // atomic; slabMagic while live
	version     uint64 // atomic; bumped on every recycle, defeats ABA on handles
	objectSize  uint32
	objectCount int32
	freeCount   int32  // atomic; see acquireSlot/releaseSlot for transition rules
	eraStamp    uint64 // atomic; era of the epoch that (re)built this slab
	epoch       uint32 // lane id that (re)built this slab, for telemetry attribution

	class *sizeClass // owning size class

	// list membership bookkeeping; mutated only under class.mu.
	id   listID
	prev *Slab
	next *Slab

	bits    *bitmap
	storage []byte // backing bytes for this slab's slots, from PageHost.Map
}

// newSlab constructs a slab over a freshly host-mapped page, filling the
// header and marking every slot free.
func newSlab(class *sizeClass, storage []byte) *Slab {
	count := int32(len(storage) / int(class.objectSize))
	s := &Slab{
		objectSize:  class.objectSize,
		objectCount: count,
		class:       class,
		storage:     storage,
		bits:        newBitmap(int(count)),
	}
	atomic.StoreInt32(&s.freeCount, count)
	atomic.StoreUint32(&s.magic, slabMagic)
	atomic.AddUint64(&s.version, 1)
	return s
}

// recycle resets a cached slab for reuse, bumping version to invalidate
// any handle still referencing its previous occupants.
func (s *Slab) recycle(era uint64) {
	s.bits.reset()
	atomic.StoreInt32(&s.freeCount, s.objectCount)
	atomic.AddUint64(&s.version, 1)
	atomic.StoreUint64(&s.eraStamp, era)
}

// slot returns the backing bytes for slot index idx.
func (s *Slab) slot(idx int) []byte {
	off := idx * int(s.objectSize)
	return s.storage[off : off+int(s.objectSize)]
}

// acquireSlot finds and claims a free slot. prior is the free_count value
// observed immediately before the decrement — the single-owner claim the
// transition rules in sizeClass.tryAcquire and sizeClass.free are built on.
func (s *Slab) acquireSlot() (idx int, prior int32, casRetries int, ok bool) {
	idx, casRetries, ok = s.bits.acquire()
	if !ok {
		return -1, 0, casRetries, false
	}
	newVal := atomic.AddInt32(&s.freeCount, -1)
	return idx, newVal + 1, casRetries, true
}

// releaseSlot clears a slot's bit. prior is the free_count value observed
// immediately before the increment.
func (s *Slab) releaseSlot(idx int) (prior int32, err error) {
	if err := s.bits.release(idx); err != nil {
		return 0, err
	}
	newVal := atomic.AddInt32(&s.freeCount, 1)
	return newVal - 1, nil
}
