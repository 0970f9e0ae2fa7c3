package hostpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_MapUnmapRoundTrip(t *testing.T) {
	h := NewHeap()

	page, err := h.Map(4096)
	require.NoError(t, err)
	assert.Len(t, page, 4096)
	assert.Equal(t, uint64(4096), h.MappedBytes())

	require.NoError(t, h.Unmap(page))
	assert.Equal(t, uint64(0), h.MappedBytes())
}

func TestHeap_UnmapUntrackedPageFails(t *testing.T) {
	h := NewHeap()
	stray := make([]byte, 16)
	assert.Error(t, h.Unmap(stray))
}

func TestHeap_MapZeroSizeFails(t *testing.T) {
	h := NewHeap()
	_, err := h.Map(0)
	assert.Error(t, err)
}

func TestHeap_RSSIsPositiveAfterMapping(t *testing.T) {
	h := NewHeap()
	_, err := h.Map(1 << 20)
	require.NoError(t, err)

	rss, err := h.RSS()
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}
