package slab

import (
	"sync"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBitmap_AcquireReleaseRoundTrip checks that every slot can be
// acquired exactly once, and that releasing and reacquiring behaves
// symmetrically.
func TestBitmap_AcquireReleaseRoundTrip(t *testing.T) {
	b := newBitmap(70) // spans two words, exercises the tail validMask

	seen := make(map[int]bool)
	for i := 0; i < 70; i++ {
		idx, _, ok := b.acquire()
		require.True(t, ok)
		assert.False(t, seen[idx], "slot %d acquired twice", idx)
		seen[idx] = true
	}

	_, _, ok := b.acquire()
	assert.False(t, ok, "bitmap should be exhausted")

	require.NoError(t, b.release(5))
	idx, _, ok := b.acquire()
	require.True(t, ok)
	assert.Equal(t, 5, idx)
}

func TestBitmap_DoubleReleaseDetected(t *testing.T) {
	b := newBitmap(8)
	idx, _, ok := b.acquire()
	require.True(t, ok)
	require.NoError(t, b.release(idx))
	assert.ErrorIs(t, b.release(idx), ErrDoubleFree)
}

// Popcount over the live bitmap must always equal the number of free
// slots, cross-checked against an independent bitset implementation used
// only as a test oracle (never on the hot path, since it isn't
// concurrency-safe).
func TestBitmap_PopcountMatchesOracle(t *testing.T) {
	const n = 130
	b := newBitmap(n)
	oracle := bitset.New(n)
	for i := uint(0); i < n; i++ {
		oracle.Set(i)
	}

	for i := 0; i < 40; i++ {
		idx, _, ok := b.acquire()
		require.True(t, ok)
		oracle.Clear(uint(idx))
	}

	assert.Equal(t, int(oracle.Count()), b.popcount())
}

// No two concurrent successful acquires on one bitmap may return the
// same slot index.
func TestBitmap_NoDoubleAllocationUnderContention(t *testing.T) {
	const slots = 1024
	const threads = 16
	b := newBitmap(slots)

	results := make(chan int, slots)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx, _, ok := b.acquire()
				if !ok {
					return
				}
				results <- idx
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, slots)
	count := 0
	for idx := range results {
		assert.False(t, seen[idx], "slot %d returned to two acquirers", idx)
		seen[idx] = true
		count++
	}
	assert.Equal(t, slots, count)
}
