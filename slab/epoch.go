package slab

import "sync/atomic"

// epochLane is one ring lane: the era it was last stamped with, whether it
// is presently closed, and its telemetry.
type epochLane struct {
	era    uint64 // atomic; monotonic stamp assigned on advance
	closed uint32 // atomic bool
	tel    epochLaneTelemetry
}

// epochRing is the fixed-size ring of lanes plus the global monotonic era
// counter. Lane 0 starts current with era 0 so it is immediately usable
// for allocation before any advance call.
type epochRing struct {
	lanes      []epochLane
	current    uint32 // atomic; index of the presently-active lane
	eraCounter uint64 // atomic; strictly monotonic
}

func newEpochRing(count int) *epochRing {
	return &epochRing{lanes: make([]epochLane, count)}
}

func (r *epochRing) count() int { return len(r.lanes) }

func (r *epochRing) validEpoch(epoch uint32) bool {
	return epoch < uint32(len(r.lanes))
}

func (r *epochRing) currentEpoch() uint32 {
	return atomic.LoadUint32(&r.current)
}

// eraOf returns the era currently stamped on the given lane.
func (r *epochRing) eraOf(epoch uint32) uint64 {
	return atomic.LoadUint64(&r.lanes[epoch].era)
}

// advance atomically bumps the era counter, stamps the next lane with it,
// re-opens that lane, and publishes it as current.
func (r *epochRing) advance() (next uint32, era uint64) {
	era = atomic.AddUint64(&r.eraCounter, 1)
	cur := atomic.LoadUint32(&r.current)
	next = (cur + 1) % uint32(len(r.lanes))
	atomic.StoreUint64(&r.lanes[next].era, era)
	atomic.StoreUint32(&r.lanes[next].closed, 0)
	atomic.StoreUint32(&r.current, next)
	return next, era
}
