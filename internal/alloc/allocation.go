// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package alloc implements the Allocation Table: the map from a tensor's
// opaque handle to its dtype, shape, refcount, and (once materialized)
// backing device buffer.
//
// Unlike the generic index/epoch Storage[T, M] this package descends
// from (core/storage.go), AllocationID is a bare monotonic uint64 with
// no reuse: the spec requires that an ID, once issued, never be handed
// out again, so there is no epoch to validate and no freelist to recycle
// indices from. A lookup therefore has exactly two failure shapes
// instead of the teacher's three (index-out-of-range, epoch-mismatch,
// not-found collapse into NeverAllocated vs Deallocated - see
// errors.go).
package alloc

import "github.com/gogpu/tensorjit/dtype"

// AllocationID identifies a tensor handle for the lifetime of a Device.
// IDs are assigned by Table.Allocate in strictly increasing order and are
// never reused, even after the allocation they named is fully released.
type AllocationID uint64

// BatchID identifies a submitted unit of GPU work, assigned by the
// Completion Tracker when a batch is encoded. Zero means "no batch has
// touched this allocation yet."
type BatchID uint64

// Allocation is one tensor's entry in the Allocation Table.
type Allocation struct {
	ID    AllocationID
	DType dtype.DType
	Shape dtype.Shape

	// ByteSize caches Shape.ByteSize(DType) at allocation time; shapes
	// and dtypes are immutable for the life of an AllocationID.
	ByteSize int64

	// RefCount is the number of live readers (inputs awaiting dispatch,
	// plus one for the handle's owner). It reaches zero exactly once,
	// at which point the allocation becomes a zombie candidate.
	RefCount int

	// Initialized is set the first time either InitializeTensor writes
	// host data or a batch that produces this allocation completes.
	Initialized bool

	// Materialized is set once a backing buffer has actually been
	// allocated from the heap; Buffer is nil until then. Materialization
	// is lazy - an allocation can be appended to many fused operations
	// before ever touching the heap, if it is folded away first.
	Materialized bool
	Buffer       BackingBuffer

	// LastModifiedBatch is the BatchID of the most recent batch that
	// writes this allocation (zero if only ever host-initialized).
	LastModifiedBatch BatchID

	// LastReferencedBatch is the BatchID of the most recent batch that
	// reads this allocation as an input. The Completion Tracker uses
	// this to know when a zero-refcount allocation's buffer is finally
	// safe to return to the Heap Allocator: not merely when the
	// Go-level refcount reaches zero, but when the last batch that
	// could still be reading its buffer has also completed.
	LastReferencedBatch BatchID
}

// BackingBuffer is the subset of hal.Buffer the Allocation Table needs;
// defined locally (rather than importing package hal) so alloc has no
// dependency on the HAL, matching its role as pure bookkeeping that any
// backend's buffer type can satisfy.
type BackingBuffer interface {
	Destroy()
}
