// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import "github.com/gogpu/tensorjit/hal"

// Queue implements hal.Queue for the CPU backend.
type Queue struct{}

// Submit runs every recorded command buffer's closures in order, then
// signals the fence. Execution is synchronous: by the time Submit
// returns, all dispatched ubershader work has completed.
func (q *Queue) Submit(buffers []hal.CommandBuffer, fence hal.Fence, fenceValue uint64) error {
	for _, cb := range buffers {
		buf, ok := cb.(*CommandBuffer)
		if !ok {
			continue
		}
		for _, cmd := range buf.commands {
			cmd()
		}
	}
	if f, ok := fence.(*Fence); ok {
		f.value.Store(fenceValue)
	}
	return nil
}

// WriteBuffer writes data to a buffer immediately.
func (q *Queue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) {
	if b, ok := buffer.(*Buffer); ok {
		b.WriteData(offset, data)
	}
}
