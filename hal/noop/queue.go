// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import "github.com/gogpu/tensorjit/hal"

// Queue implements hal.Queue for the noop backend.
type Queue struct{}

// Submit signals the fence immediately: the noop backend never defers work.
func (q *Queue) Submit(_ []hal.CommandBuffer, fence hal.Fence, fenceValue uint64) error {
	if f, ok := fence.(*Fence); ok {
		f.value.Store(fenceValue)
	}
	return nil
}

// WriteBuffer is a no-op; noop buffers hold no data.
func (q *Queue) WriteBuffer(_ hal.Buffer, _ uint64, _ []byte) {}
