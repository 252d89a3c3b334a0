// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tensorjit

import (
	"errors"

	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/heap"
	"github.com/gogpu/tensorjit/internal/stream"
)

// Re-exported sentinel errors. Device methods return these directly
// rather than wrapping them in a package-local type, so callers can
// keep using errors.Is/errors.As against the names documented here
// without reaching into internal packages themselves.
var (
	// ErrAlreadyInitialized is returned by InitializeTensor when the
	// target has already been written once, by either a prior
	// InitializeTensor call or a completed batch.
	ErrAlreadyInitialized = alloc.ErrAlreadyInitialized

	// ErrNotInitialized is returned by ReadTensor when the target has
	// never been written.
	ErrNotInitialized = alloc.ErrNotInitialized

	// ErrUnknownOp is returned by ExecuteOperation when the operation
	// name does not resolve to a known ubershader op-code.
	ErrUnknownOp = stream.ErrUnknownOp

	// ErrOutOfMemory is returned when the Heap Allocator cannot satisfy
	// an allocation within the device's working-set ceiling.
	ErrOutOfMemory = heap.ErrOutOfMemory

	// ErrHostAccessUnsupported is returned by ReadTensor or
	// InitializeTensor when the active backend's buffers do not
	// implement hal.HostAccessible.
	ErrHostAccessUnsupported = hal.ErrHostAccessUnsupported

	// ErrDeviceClosed is returned by any Device method called after
	// Close.
	ErrDeviceClosed = errors.New("tensorjit: device is closed")

	// ErrGroupMismatch is returned by ExecuteOperation when its inputs
	// do not all share the same dtype group (32-bit or 64-bit lane
	// width) - the Operation invariant the Fusion Compiler assumes
	// holds by construction (§3).
	ErrGroupMismatch = errors.New("tensorjit: operation inputs span more than one dtype group")

	// ErrShapeMismatch is returned by ExecuteOperation when its inputs'
	// element counts disagree and no scalar-broadcast operand explains
	// the difference.
	ErrShapeMismatch = errors.New("tensorjit: operation inputs have incompatible shapes")

	// ErrForeignTensor is returned when a Tensor created by one Device is
	// passed to a method of a different Device; AllocationIDs are only
	// meaningful within the table that issued them.
	ErrForeignTensor = errors.New("tensorjit: tensor belongs to a different device")
)

// IsNeverAllocated reports whether err identifies an AllocationID that
// was never issued by this Device, as opposed to one that was issued
// and later fully released. See alloc.IsNeverAllocated.
func IsNeverAllocated(err error) bool { return alloc.IsNeverAllocated(err) }

// IsDeallocated reports whether err identifies an AllocationID that was
// issued and has since had its refcount reach zero. See
// alloc.IsDeallocated.
func IsDeallocated(err error) bool { return alloc.IsDeallocated(err) }
