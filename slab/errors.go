package slab

import "errors"

// Error kinds. All are returned, never panicked; the core never writes
// memory on an error path.
var (
	// ErrInvalidHandle is returned when a handle's magic/version/bounds no
	// longer match its slab — stale, torn, or simply garbage.
	ErrInvalidHandle = errors.New("slab: invalid or stale handle")

	// ErrDoubleFree is returned when releasing a slot whose bitmap bit is
	// already set (i.e. already free).
	ErrDoubleFree = errors.New("slab: double free detected")

	// ErrNoSizeClass is returned when a requested size exceeds every
	// configured size class.
	ErrNoSizeClass = errors.New("slab: no size class fits requested size")

	// ErrOutOfMemory is returned when the host page primitive fails to
	// satisfy a page request.
	ErrOutOfMemory = errors.New("slab: host page primitive failed")

	// ErrInvalidEpoch is returned for an out-of-range epoch id, or an
	// attempt to close the current epoch.
	ErrInvalidEpoch = errors.New("slab: invalid epoch (current or out of range)")
)
