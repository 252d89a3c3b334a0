// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/tensorjit/dtype"
)

// Resource is a placeholder implementation for HAL resource types that
// carry no interpreter-visible state (shader modules, pipelines, bind
// group layouts, pipeline layouts).
type Resource struct{}

// Destroy is a no-op.
func (r *Resource) Destroy() {}

// Buffer implements hal.Buffer with real byte storage. The ubershader
// interpreter reads and writes this data directly during Dispatch.
type Buffer struct {
	Resource
	data []byte
	mu   sync.RWMutex
}

// GetData returns a copy of the buffer's contents.
func (b *Buffer) GetData() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// WriteData writes data into the buffer starting at offset.
func (b *Buffer) WriteData(offset uint64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data[offset:], data)
}

// ShaderModule records which ubershader variant (32-bit or 64-bit lane
// width) a module was created for.
type ShaderModule struct {
	Resource
	Group dtype.Group
}

// BindGroupLayout is a placeholder; binding slot numbers live on
// BindGroupEntry, not on the layout.
type BindGroupLayout struct {
	Resource
}

// BindGroup holds the real buffers bound to each slot, keyed by the
// fixed binding convention in bindings.go.
type BindGroup struct {
	Resource
	buffers map[uint32]*Buffer
}

// PipelineLayout is a placeholder.
type PipelineLayout struct {
	Resource
}

// ComputePipeline records which ubershader group variant (32-bit or
// 64-bit lane width) a dispatch against this pipeline should interpret
// its params buffer as.
type ComputePipeline struct {
	Resource
	Group dtype.Group
}

// Fence implements hal.Fence with an atomic counter, signaled
// synchronously when Submit dispatches its command buffer.
type Fence struct {
	Resource
	value atomic.Uint64
}
