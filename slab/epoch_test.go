package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpochRing_StartsAtZeroAndAdvances(t *testing.T) {
	r := newEpochRing(4)
	assert.Equal(t, uint32(0), r.currentEpoch())
	assert.Equal(t, uint64(0), r.eraOf(0))

	next, era := r.advance()
	assert.Equal(t, uint32(1), next)
	assert.Equal(t, uint64(1), era)
	assert.Equal(t, uint32(1), r.currentEpoch())
}

// The era counter must strictly increase across any sequence of
// advances, including ring wraparound.
func TestEpochRing_MonotonicEraAcrossWrap(t *testing.T) {
	r := newEpochRing(4)
	var lastEra uint64
	for i := 0; i < 20; i++ {
		_, era := r.advance()
		assert.Greater(t, era, lastEra)
		lastEra = era
	}
	assert.Equal(t, uint64(20), lastEra)
}

func TestEpochRing_ValidEpoch(t *testing.T) {
	r := newEpochRing(4)
	assert.True(t, r.validEpoch(0))
	assert.True(t, r.validEpoch(3))
	assert.False(t, r.validEpoch(4))
}
