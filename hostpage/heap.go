// Package hostpage provides PageHost implementations: the host page
// primitive a slab allocator maps and unmaps pages through.
package hostpage

import (
	"fmt"
	"runtime"
	"sync"
)

// Heap is a portable PageHost backed by the Go heap: Map allocates a byte
// slice of the requested size and Unmap drops the last reference to it,
// letting the garbage collector reclaim the page. It requires no build
// tag and no OS-level mmap support.
type Heap struct {
	mu     sync.Mutex
	live   map[*byte][]byte
	mapped uint64
}

// NewHeap constructs a Heap page host.
func NewHeap() *Heap {
	return &Heap{live: make(map[*byte][]byte)}
}

// Map returns a freshly allocated, zeroed byte slice of the requested size.
func (h *Heap) Map(size uintptr) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("hostpage: map size must be > 0")
	}
	page := make([]byte, size)
	h.mu.Lock()
	h.live[&page[0]] = page
	h.mapped += uint64(size)
	h.mu.Unlock()
	return page, nil
}

// Unmap drops the tracked reference to page, making it eligible for GC.
func (h *Heap) Unmap(page []byte) error {
	if len(page) == 0 {
		return fmt.Errorf("hostpage: unmap called on empty page")
	}
	key := &page[0]
	h.mu.Lock()
	defer h.mu.Unlock()
	tracked, ok := h.live[key]
	if !ok {
		return fmt.Errorf("hostpage: unmap called on untracked page")
	}
	h.mapped -= uint64(len(tracked))
	delete(h.live, key)
	return nil
}

// RSS reports the Go runtime's heap-in-use figure as a stand-in for
// resident set size, since a heap-backed page host has no OS-level
// mapping of its own to query.
func (h *Heap) RSS() (uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse, nil
}

// MappedBytes reports the sum of page sizes currently tracked as live,
// useful in tests that want an exact figure instead of RSS's noise.
func (h *Heap) MappedBytes() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mapped
}
