// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import "sync/atomic"

// Resource is a placeholder implementation for most HAL resource types.
// It implements hal.Resource with a no-op Destroy method.
type Resource struct{}

// Destroy is a no-op.
func (r *Resource) Destroy() {}

// Buffer is a noop buffer: no backing storage, only a recorded size for
// diagnostics.
type Buffer struct {
	Resource
	Size uint64
}

// Fence implements hal.Fence with an atomic counter, matching the
// software/GPU fence contract without any real dispatch behind it.
type Fence struct {
	Resource
	value atomic.Uint64
}
