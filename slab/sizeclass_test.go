package slab

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/epochslab/hostpage"
)

// listOf walks an intrusive list from its head and returns the slabs in
// order, for assertions that don't want to touch head pointers directly.
func listOf(head *Slab) []*Slab {
	var out []*Slab
	for s := head; s != nil; s = s.next {
		out = append(out, s)
	}
	return out
}

// TestSizeClass_ListMembershipMatchesOccupancy exercises P2: a slab's
// list_id always matches the list it's actually linked into, and that
// matches the occupancy rule from I2 (full iff free_count == 0, partial
// iff strictly between, on no list iff fully empty).
func TestSizeClass_ListMembershipMatchesOccupancy(t *testing.T) {
	a, err := Create(Config{Host: hostpage.NewHeap(), SizeClasses: []uint32{64}})
	require.NoError(t, err)
	defer a.Close()

	c := a.classes[0]

	// Fill one slab to the brim, driving it partial -> full.
	var handles []Handle
	for {
		h, err := a.AllocObjEpoch(64, 0)
		require.NoError(t, err)
		handles = append(handles, h)
		if atomic.LoadInt32(&h.slab.freeCount) == 0 {
			break
		}
	}

	assert.Contains(t, listOf(c.full), handles[0].slab)
	assert.NotContains(t, listOf(c.partial), handles[0].slab)
	assert.Equal(t, listFull, handles[0].slab.id)

	// Free one slot: full -> partial, and it must be published as the new
	// current_partial hint (I3).
	ok, err := a.FreeObj(handles[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, listOf(c.partial), handles[0].slab)
	assert.NotContains(t, listOf(c.full), handles[0].slab)
	assert.Equal(t, listPartial, handles[0].slab.id)
	assert.Same(t, handles[0].slab, c.currentPartial.Load())

	// Free every remaining slot: partial -> fully empty -> off both lists,
	// onto the cache.
	for _, h := range handles[1:] {
		ok, err := a.FreeObj(h)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.NotContains(t, listOf(c.partial), handles[0].slab)
	assert.NotContains(t, listOf(c.full), handles[0].slab)
	assert.Equal(t, listNone, handles[0].slab.id)
	stackLen, overflowLen := c.cache.len()
	assert.Equal(t, 1, stackLen+overflowLen)
}

// TestSizeClass_HandleRoundTrip exercises P8: an allocate-free pair
// returns the class to a state equivalent to before the allocation (same
// list occupancy, same cache occupancy).
func TestSizeClass_HandleRoundTrip(t *testing.T) {
	a, err := Create(Config{Host: hostpage.NewHeap(), SizeClasses: []uint32{128}})
	require.NoError(t, err)
	defer a.Close()

	c := a.classes[0]
	beforePartial, beforeFull := countList(c.partial), countList(c.full)
	beforeStack, beforeOverflow := c.cache.len()

	h, err := a.AllocObjEpoch(128, 0)
	require.NoError(t, err)
	ok, err := a.FreeObj(h)
	require.NoError(t, err)
	require.True(t, ok)

	afterPartial, afterFull := countList(c.partial), countList(c.full)
	afterStack, afterOverflow := c.cache.len()

	// The slab itself moves from "doesn't exist" to "cached, fully free"
	// rather than back to zero slabs (pages aren't returned to the host
	// until an epoch close), so list occupancy matches and cache occupancy
	// gains exactly the one newly-built, now-empty slab.
	assert.Equal(t, beforePartial, afterPartial)
	assert.Equal(t, beforeFull, afterFull)
	assert.Equal(t, beforeStack+beforeOverflow+1, afterStack+afterOverflow)
}
