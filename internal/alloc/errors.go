// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package alloc

import "errors"

// Sentinel errors for the Allocation Table's user-visible failure modes,
// mirroring the style of core/error.go in the WebGPU implementation this
// module descends from: plain sentinels for conditions that carry no
// extra data, and a struct type (IDError) below for the one that does.
var (
	// ErrAlreadyInitialized is returned by Initialize when the allocation
	// has already been written once.
	ErrAlreadyInitialized = errors.New("alloc: allocation already initialized")

	// ErrNotInitialized is returned by Read when the allocation has never
	// been written by either a host initializer or a completed batch.
	ErrNotInitialized = errors.New("alloc: allocation not initialized")

	// ErrNullBackingBuffer names a read of a handle that was never
	// materialized. No code path in this module returns it: ReadTensor
	// reports ErrNotInitialized for a handle that was never written, and
	// materializes a buffer on demand otherwise.
	ErrNullBackingBuffer = errors.New("alloc: allocation has no backing buffer")
)

// IDError distinguishes "this ID was issued and then fully released" from
// "this ID was never issued at all" - the precise failure mode the spec
// requires tests be able to assert (§4.1 fetch).
type IDError struct {
	ID      AllocationID
	NextID  AllocationID
	// NeverAllocated is true when ID >= the table's next_id counter at the
	// time of the failed lookup; false means the ID was issued and its
	// refcount later reached zero (Deallocated).
	NeverAllocated bool
}

func (e *IDError) Error() string {
	if e.NeverAllocated {
		return "alloc: allocation id was never allocated"
	}
	return "alloc: allocation was deallocated"
}

// IsNeverAllocated reports whether err is an *IDError for an ID that was
// never issued.
func IsNeverAllocated(err error) bool {
	var idErr *IDError
	if errors.As(err, &idErr) {
		return idErr.NeverAllocated
	}
	return false
}

// IsDeallocated reports whether err is an *IDError for an ID that was
// issued and later fully released.
func IsDeallocated(err error) bool {
	var idErr *IDError
	if errors.As(err, &idErr) {
		return !idErr.NeverAllocated
	}
	return false
}
