package slab

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Config configures an Allocator at creation time. Values left at their
// zero value take the documented default.
type Config struct {
	PageSize      uint32   // default 4096
	EpochCount    int      // power of two, default 16
	SizeClasses   []uint32 // default {64, 128, 256, 512}
	CacheCapacity int      // default 32
	Host          PageHost // required; see the hostpage package
}

func (c *Config) setDefaults() {
	if c.PageSize == 0 {
		c.PageSize = 4096
	}
	if c.EpochCount == 0 {
		c.EpochCount = 16
	}
	if len(c.SizeClasses) == 0 {
		c.SizeClasses = []uint32{64, 128, 256, 512}
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = 32
	}
}

// Allocator is the allocator root: one size-class engine per configured
// class, the epoch ring, and the host page primitive. It holds no
// process-wide state; a process may host multiple independent instances.
type Allocator struct {
	cfg     Config
	classes []*sizeClass
	epochs  *epochRing
	host    PageHost

	// ptrIndex backs the pointer-only API (MallocEpoch/Free). Go gives no
	// guaranteed page-aligned pointer arithmetic the way a native allocator
	// would, so this is an auxiliary pointer-to-handle map for platforms
	// without that guarantee.
	ptrMu    sync.Mutex
	ptrIndex map[uintptr]Handle
}

// Create builds a new allocator instance.
func Create(cfg Config) (*Allocator, error) {
	cfg.setDefaults()
	if cfg.EpochCount&(cfg.EpochCount-1) != 0 {
		return nil, fmt.Errorf("slab: epoch count %d must be a power of two", cfg.EpochCount)
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("slab: Config.Host is required")
	}

	sizes := append([]uint32(nil), cfg.SizeClasses...)
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	a := &Allocator{
		cfg:      cfg,
		epochs:   newEpochRing(cfg.EpochCount),
		host:     cfg.Host,
		ptrIndex: make(map[uintptr]Handle),
	}
	for _, sz := range sizes {
		c := newSizeClass(a, sz, cfg.CacheCapacity)
		c.index = len(a.classes)
		a.classes = append(a.classes, c)
	}
	return a, nil
}

// Close releases every backing page still held by the allocator, across
// every size class.
func (a *Allocator) Close() error {
	var firstErr error
	for _, c := range a.classes {
		if err := c.releaseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// classFor selects the smallest size class that fits size, or nil if size
// exceeds every configured class.
func (a *Allocator) classFor(size uint32) *sizeClass {
	for _, c := range a.classes {
		if size <= c.objectSize {
			return c
		}
	}
	return nil
}

// AllocObjEpoch allocates an object of the given size stamped into the
// given epoch lane, returning a validatable Handle.
func (a *Allocator) AllocObjEpoch(size uint32, epoch uint32) (Handle, error) {
	if !a.epochs.validEpoch(epoch) {
		return Handle{}, ErrInvalidEpoch
	}
	class := a.classFor(size)
	if class == nil {
		return Handle{}, ErrNoSizeClass
	}
	h, err := class.allocate(epoch)
	if err != nil {
		return Handle{}, err
	}
	atomic.AddUint64(&a.epochs.lanes[epoch].tel.allocations, 1)
	return h, nil
}

// FreeObj releases a previously-allocated handle. It returns (false,
// ErrInvalidHandle) without writing memory if the handle is stale.
func (a *Allocator) FreeObj(h Handle) (bool, error) {
	if !h.valid() {
		if h.slab != nil {
			atomic.AddUint64(&h.slab.class.tel.invalidHandles, 1)
		}
		return false, ErrInvalidHandle
	}
	if err := h.slab.class.free(h); err != nil {
		return false, err
	}
	return true, nil
}

// MallocEpoch is the handle-less convenience form of AllocObjEpoch: it
// returns the slot's backing bytes directly.
func (a *Allocator) MallocEpoch(size uint32, epoch uint32) ([]byte, error) {
	h, err := a.AllocObjEpoch(size, epoch)
	if err != nil {
		return nil, err
	}
	ptr := h.slab.slot(h.slot)
	a.trackPointer(ptr, h)
	return ptr, nil
}

// Free is the pointer-only counterpart to MallocEpoch: it locates the
// owning handle by address via the auxiliary pointer index.
func (a *Allocator) Free(ptr []byte) error {
	h, ok := a.lookupPointer(ptr)
	if !ok {
		return ErrInvalidHandle
	}
	a.untrackPointer(ptr)
	ok, err := a.FreeObj(h)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidHandle
	}
	return nil
}

func ptrKey(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func (a *Allocator) trackPointer(ptr []byte, h Handle) {
	key := ptrKey(ptr)
	a.ptrMu.Lock()
	a.ptrIndex[key] = h
	a.ptrMu.Unlock()
}

func (a *Allocator) untrackPointer(ptr []byte) {
	key := ptrKey(ptr)
	a.ptrMu.Lock()
	delete(a.ptrIndex, key)
	a.ptrMu.Unlock()
}

func (a *Allocator) lookupPointer(ptr []byte) (Handle, bool) {
	key := ptrKey(ptr)
	a.ptrMu.Lock()
	h, ok := a.ptrIndex[key]
	a.ptrMu.Unlock()
	return h, ok
}

// HandleForPointer recovers the Handle backing a slice returned by
// MallocEpoch, without removing it from the pointer index. It exists for
// callers that want handle-based free semantics (stale-handle detection,
// epoch-scoped bookkeeping) while still allocating through the pointer API.
func (a *Allocator) HandleForPointer(ptr []byte) (Handle, error) {
	h, ok := a.lookupPointer(ptr)
	if !ok {
		return Handle{}, ErrInvalidHandle
	}
	return h, nil
}

// EpochCurrent returns the active lane id.
func (a *Allocator) EpochCurrent() uint32 {
	return a.epochs.currentEpoch()
}

// EpochAdvance moves the ring to its next lane, stamping it with a fresh,
// strictly-increasing era, and returns the new current epoch id.
func (a *Allocator) EpochAdvance() uint32 {
	next, _ := a.epochs.advance()
	return next
}

// EpochClose reclaims a lane: it drains cache/overflow slabs stamped at
// or before the lane's era, keeps as many as fit back in the cache,
// returns the pages of the rest to the host primitive, and records the
// RSS delta. Closing the current epoch returns
// ErrInvalidEpoch; closing an already-closed lane is a no-op.
func (a *Allocator) EpochClose(epoch uint32) error {
	if !a.epochs.validEpoch(epoch) {
		return ErrInvalidEpoch
	}
	if epoch == a.epochs.currentEpoch() {
		return ErrInvalidEpoch
	}
	lane := &a.epochs.lanes[epoch]
	if atomic.LoadUint32(&lane.closed) == 1 {
		return nil
	}

	rssBefore, err := a.host.RSS()
	if err != nil {
		return fmt.Errorf("slab: rss sample before close: %w", err)
	}
	atomic.StoreUint64(&lane.tel.rssBefore, rssBefore)

	era := atomic.LoadUint64(&lane.era)
	for _, c := range a.classes {
		c.reclaimEra(era)
	}

	rssAfter, err := a.host.RSS()
	if err != nil {
		return fmt.Errorf("slab: rss sample after close: %w", err)
	}
	atomic.StoreUint64(&lane.tel.rssAfter, rssAfter)
	atomic.StoreUint32(&lane.closed, 1)
	return nil
}

// StatsEpoch returns a snapshot of one epoch lane's telemetry.
func (a *Allocator) StatsEpoch(epoch uint32) (EpochStats, error) {
	if !a.epochs.validEpoch(epoch) {
		return EpochStats{}, ErrInvalidEpoch
	}
	lane := &a.epochs.lanes[epoch]
	return EpochStats{
		Epoch:          epoch,
		Era:            atomic.LoadUint64(&lane.era),
		Allocations:    atomic.LoadUint64(&lane.tel.allocations),
		Frees:          atomic.LoadUint64(&lane.tel.frees),
		RSSBeforeClose: atomic.LoadUint64(&lane.tel.rssBefore),
		RSSAfterClose:  atomic.LoadUint64(&lane.tel.rssAfter),
		Closed:         atomic.LoadUint32(&lane.closed) == 1,
	}, nil
}

// StatsClass returns a snapshot of one size class's telemetry.
func (a *Allocator) StatsClass(class int) (ClassStats, error) {
	if class < 0 || class >= len(a.classes) {
		return ClassStats{}, ErrNoSizeClass
	}
	return a.classes[class].snapshot(), nil
}

// NumSizeClasses reports how many size classes this allocator was
// configured with.
func (a *Allocator) NumSizeClasses() int {
	return len(a.classes)
}

// EpochCount reports the ring's lane count.
func (a *Allocator) EpochCount() int {
	return a.epochs.count()
}
