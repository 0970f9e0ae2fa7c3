package slab

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// sizeClass owns the partial/full intrusive lists, the current_partial
// fast-path hint, and the empty-slab cache for one fixed object size.
type sizeClass struct {
	index      int
	objectSize uint32

	mu      sync.Mutex // guards list surgery below; never held on the fast path
	partial *Slab      // head of the partial list (LIFO)
	full    *Slab      // head of the full list

	currentPartial atomic.Pointer[Slab] // advisory fast-path hint

	cache *emptyCache
	alloc *Allocator

	tel classTelemetry
}

func newSizeClass(a *Allocator, objectSize uint32, cacheCap int) *sizeClass {
	return &sizeClass{
		objectSize: objectSize,
		alloc:      a,
		cache:      newEmptyCache(cacheCap),
	}
}

// allocate is the fast path: load current_partial with acquire semantics,
// and if non-nil, try to claim a slot with no mutex involved.
func (c *sizeClass) allocate(epoch uint32) (Handle, error) {
	if s := c.currentPartial.Load(); s != nil {
		if h, ok := c.tryAcquire(s); ok {
			return h, nil
		}
		atomic.AddUint64(&c.tel.fastPathFull, 1)
	} else {
		atomic.AddUint64(&c.tel.fastPathNilHint, 1)
	}
	return c.allocateSlow(epoch)
}

// tryAcquire attempts a lock-free slot acquire against s and, on a 1->0
// free_count transition, hands off to the slow-path repair.
func (c *sizeClass) tryAcquire(s *Slab) (Handle, bool) {
	idx, prior, retries, ok := s.acquireSlot()
	if !ok {
		return Handle{}, false
	}
	if retries > 0 {
		atomic.AddUint64(&c.tel.bitmapRetries, uint64(retries))
	}
	if prior == 1 {
		c.onBecameFull(s)
	}
	return Handle{slab: s, slot: idx, class: c.index, version: atomic.LoadUint64(&s.version)}, true
}

// allocateSlow is the slow path: under the class mutex, re-check
// current_partial, then the partial list, then the empty cache, then a
// fresh page from the host primitive — in that order of preference.
func (c *sizeClass) allocateSlow(epoch uint32) (Handle, error) {
	atomic.AddUint64(&c.tel.slowPathHits, 1)
	for {
		c.mu.Lock()

		if s := c.currentPartial.Load(); s != nil {
			c.mu.Unlock()
			if h, ok := c.tryAcquire(s); ok {
				return h, nil
			}
			continue // another thread raced us or relisted it; re-check locked
		}

		if s := c.partial; s != nil {
			// Head of the partial list becomes the new fast-path hint; it
			// remains a member of the partial list.
			c.currentPartial.Store(s)
			c.mu.Unlock()
			continue
		}

		s, err := c.freshSlabLocked(epoch)
		if err != nil {
			c.mu.Unlock()
			return Handle{}, err
		}
		c.pushPartialLocked(s)
		c.currentPartial.Store(s)
		c.mu.Unlock()
		continue
	}
}

// freshSlabLocked obtains a slab for a new partial list entry: the empty
// cache first (its overflow list FIFO, then its stack LIFO), then a
// freshly-mapped page. Must be called
// with c.mu held.
func (c *sizeClass) freshSlabLocked(epoch uint32) (*Slab, error) {
	era := c.alloc.epochs.eraOf(epoch)

	if s := c.cache.pop(); s != nil {
		atomic.AddUint64(&c.tel.cacheRecycled, 1)
		s.recycle(era)
		s.epoch = epoch
		return s, nil
	}

	page, err := c.alloc.host.Map(uintptr(c.alloc.cfg.PageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	s := newSlab(c, page)
	s.epoch = epoch
	atomic.StoreUint64(&s.eraStamp, era)
	atomic.AddUint64(&c.tel.newSlabCount, 1)
	return s, nil
}

// free releases a slot and performs any required relisting or recycling.
func (c *sizeClass) free(h Handle) error {
	s := h.slab
	prior, err := s.releaseSlot(h.slot)
	if err != nil {
		atomic.AddUint64(&c.tel.doubleFrees, 1)
		return err
	}

	switch {
	case prior == 0:
		c.onLeftFull(s)
	case prior == s.objectCount-1:
		c.onBecameEmpty(s)
	}

	atomic.AddUint64(&c.alloc.epochs.lanes[s.epoch].tel.frees, 1)
	return nil
}

// onBecameFull relists a slab partial->full on the 1->0 free_count
// transition and clears current_partial if it pointed at this slab.
func (c *sizeClass) onBecameFull(s *Slab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.id == listFull {
		return // a racing thread already relisted it
	}
	c.unlinkLocked(s)
	s.id = listFull
	s.prev = nil
	s.next = c.full
	if c.full != nil {
		c.full.prev = s
	}
	c.full = s
	atomic.AddUint64(&c.tel.partialToFull, 1)

	if c.currentPartial.Load() == s {
		c.currentPartial.Store(nil)
	}
}

// onLeftFull relists a slab full->partial on the 0->1 free_count
// transition and publishes it as current_partial if that hint is
// currently nil.
func (c *sizeClass) onLeftFull(s *Slab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.id != listFull {
		return // a racing thread already relisted it
	}
	c.unlinkLocked(s)
	c.pushPartialLocked(s)
	atomic.AddUint64(&c.tel.fullToPartial, 1)
	if c.currentPartial.Load() == nil {
		c.currentPartial.Store(s)
	}
}

// onBecameEmpty unlinks a slab that just reached free_count ==
// object_count and pushes it onto the empty-slab cache, a candidate for
// recycling or, once capacity overflows, page-return at the next epoch
// close.
func (c *sizeClass) onBecameEmpty(s *Slab) {
	c.mu.Lock()
	if c.currentPartial.Load() == s {
		c.currentPartial.Store(nil)
	}
	if s.id == listPartial || s.id == listFull {
		c.unlinkLocked(s)
	}
	s.id = listNone
	c.mu.Unlock()

	if overflowed := c.cache.push(s); overflowed {
		atomic.AddUint64(&c.tel.cacheOverflowed, 1)
	}
}

// pushPartialLocked prepends s to the partial list (LIFO). Must be called
// with c.mu held.
func (c *sizeClass) pushPartialLocked(s *Slab) {
	s.id = listPartial
	s.prev = nil
	s.next = c.partial
	if c.partial != nil {
		c.partial.prev = s
	}
	c.partial = s
}

// unlinkLocked removes s from whichever list it is currently on. Must be
// called with c.mu held.
func (c *sizeClass) unlinkLocked(s *Slab) {
	if s.prev != nil {
		s.prev.next = s.next
	} else if s.id == listPartial {
		c.partial = s.next
	} else if s.id == listFull {
		c.full = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.prev, s.next = nil, nil
}

// reclaimEra evicts cached slabs whose era_stamp is at or before the
// closed lane's era and whose free_count == object_count: retained ones
// (up to cache capacity) go back into the cache unchanged, the remainder
// have their version bumped (invalidating outstanding handles) and their
// page returned to the host primitive.
func (c *sizeClass) reclaimEra(era uint64) {
	match := func(s *Slab) bool {
		return atomic.LoadUint64(&s.eraStamp) <= era &&
			atomic.LoadInt32(&s.freeCount) == s.objectCount
	}
	evicted := c.cache.evict(match)
	if len(evicted) == 0 {
		return
	}

	stackLen, _ := c.cache.len()
	room := c.cache.capacity - stackLen
	if room < 0 {
		room = 0
	}

	for i, s := range evicted {
		if i < room {
			c.cache.push(s)
			continue
		}
		atomic.AddUint64(&s.version, 1)
		_ = c.alloc.host.Unmap(s.storage)
	}
}

// releaseAll unmaps every page this class still holds: partial, full, and
// cached/overflowed slabs alike.
func (c *sizeClass) releaseAll() error {
	c.mu.Lock()
	var firstErr error
	unmapList := func(head *Slab) {
		for s := head; s != nil; {
			next := s.next
			if err := c.alloc.host.Unmap(s.storage); err != nil && firstErr == nil {
				firstErr = err
			}
			s = next
		}
	}
	unmapList(c.partial)
	unmapList(c.full)
	c.partial, c.full = nil, nil
	c.currentPartial.Store(nil)
	c.mu.Unlock()

	for _, s := range c.cache.evict(func(*Slab) bool { return true }) {
		if err := c.alloc.host.Unmap(s.storage); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshot returns the telemetry and current list occupancy for this class.
func (c *sizeClass) snapshot() ClassStats {
	st := c.tel.snapshot()
	st.ObjectSize = c.objectSize

	c.mu.Lock()
	st.PartialCount = countList(c.partial)
	st.FullCount = countList(c.full)
	c.mu.Unlock()

	st.CacheCount, st.OverflowCount = c.cache.len()
	return st
}

func countList(head *Slab) int {
	n := 0
	for s := head; s != nil; s = s.next {
		n++
	}
	return n
}
