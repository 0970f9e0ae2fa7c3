// Package slab implements a fixed-size-class slab allocator with epoch-scoped
// lifetime management: a lock-free per-slab bitmap fast path, per-size-class
// partial/full slab lists, an empty-slab cache that recycles backing pages,
// and a ring of epoch lanes that allows reclaiming an entire temporal phase
// of allocations without scanning live objects.
package slab
