// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tensorjit

import (
	"github.com/gogpu/tensorjit/dtype"
	"github.com/gogpu/tensorjit/internal/alloc"
)

// Tensor is an opaque handle to one Allocation Table entry: the
// "(opaque handle, rank)" pair allocate_tensor returns (§6). A Tensor is
// only ever valid for the Device that created it; passing one to a
// different Device's methods produces ErrForeignTensor, since
// AllocationIDs are only unique within a single Device's table.
type Tensor struct {
	device *Device
	id     alloc.AllocationID
	dtype  dtype.DType
	shape  dtype.Shape
}

// DType reports the tensor's element type.
func (t *Tensor) DType() dtype.DType { return t.dtype }

// Shape reports the tensor's dimensions.
func (t *Tensor) Shape() dtype.Shape { return t.shape }

// Rank reports the number of dimensions, the second half of
// allocate_tensor's "(opaque handle, rank)" result.
func (t *Tensor) Rank() int { return t.shape.Rank }

// Release decrements the tensor's refcount, the frontend wrapper's
// realization of release_tensor (§9 "Refcount-driven zombie pruning" -
// without a language-level finalizer to rely on, callers must release
// explicitly).
func (t *Tensor) Release() error { return t.device.ReleaseTensor(t) }

// Initialize writes host data into the tensor via initialize_tensor.
func (t *Tensor) Initialize(write func(data []byte)) error {
	return t.device.InitializeTensor(t, write)
}

// Read observes the tensor's current value via read_tensor. mutating
// reports whether read mutates data in place before returning; when
// true, the modified bytes are written back to the tensor.
func (t *Tensor) Read(mutating bool, read func(data []byte)) error {
	return t.device.ReadTensor(t, mutating, read)
}

// CopyShape writes the tensor's dimensions into dims, the frontend's
// realization of copy_tensor_shape.
func (t *Tensor) CopyShape(dims []int64) error { return t.device.CopyTensorShape(t, dims) }
