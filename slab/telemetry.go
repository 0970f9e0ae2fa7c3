package slab

import "sync/atomic"

// classTelemetry holds the atomic counters for one size class. All
// increments are relaxed; consumers read a snapshot, never under a global
// lock.
type classTelemetry struct {
	slowPathHits    uint64
	newSlabCount    uint64
	partialToFull   uint64
	fullToPartial   uint64
	fastPathNilHint uint64
	fastPathFull    uint64
	cacheRecycled   uint64
	cacheOverflowed uint64
	bitmapRetries   uint64
	doubleFrees     uint64
	invalidHandles  uint64
}

func (t *classTelemetry) snapshot() ClassStats {
	return ClassStats{
		SlowPathHits:    atomic.LoadUint64(&t.slowPathHits),
		NewSlabCount:    atomic.LoadUint64(&t.newSlabCount),
		PartialToFull:   atomic.LoadUint64(&t.partialToFull),
		FullToPartial:   atomic.LoadUint64(&t.fullToPartial),
		FastPathNilHint: atomic.LoadUint64(&t.fastPathNilHint),
		FastPathFull:    atomic.LoadUint64(&t.fastPathFull),
		CacheRecycled:   atomic.LoadUint64(&t.cacheRecycled),
		CacheOverflowed: atomic.LoadUint64(&t.cacheOverflowed),
		BitmapRetries:   atomic.LoadUint64(&t.bitmapRetries),
		DoubleFrees:     atomic.LoadUint64(&t.doubleFrees),
		InvalidHandles:  atomic.LoadUint64(&t.invalidHandles),
	}
}

// ClassStats is a point-in-time snapshot of one size class.
type ClassStats struct {
	ObjectSize      uint32
	SlowPathHits    uint64
	NewSlabCount    uint64
	PartialToFull   uint64
	FullToPartial   uint64
	FastPathNilHint uint64
	FastPathFull    uint64
	CacheRecycled   uint64
	CacheOverflowed uint64
	BitmapRetries   uint64
	DoubleFrees     uint64
	InvalidHandles  uint64
	PartialCount    int
	FullCount       int
	CacheCount      int
	OverflowCount   int
}

// epochLaneTelemetry holds the per-lane atomic counters.
type epochLaneTelemetry struct {
	allocations uint64
	frees       uint64
	rssBefore   uint64
	rssAfter    uint64
}

// EpochStats is a point-in-time snapshot of one epoch lane. Per-lane stats
// are lane-wide rather than per-size-class, so there is no class dimension
// here — see DESIGN.md's open-question notes for why.
type EpochStats struct {
	Epoch          uint32
	Era            uint64
	Allocations    uint64
	Frees          uint64
	RSSBeforeClose uint64
	RSSAfterClose  uint64
	Closed         bool
}
