// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import (
	"time"

	"github.com/gogpu/tensorjit/dtype"
	"github.com/gogpu/tensorjit/hal"
)

// Device implements hal.Device for the CPU backend.
type Device struct{}

// CreateBuffer allocates real backing storage for the buffer.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	return &Buffer{data: make([]byte, desc.Size)}, nil
}

// DestroyBuffer is a no-op; Go's garbage collector reclaims the data.
func (d *Device) DestroyBuffer(_ hal.Buffer) {}

// CreateShaderModule records the ubershader group variant the module
// was built for.
func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	return &ShaderModule{Group: desc.Group}, nil
}

// DestroyShaderModule is a no-op.
func (d *Device) DestroyShaderModule(_ hal.ShaderModule) {}

// CreateBindGroupLayout creates a placeholder layout; binding numbers
// live on BindGroupEntry.
func (d *Device) CreateBindGroupLayout(_ *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	return &BindGroupLayout{}, nil
}

// DestroyBindGroupLayout is a no-op.
func (d *Device) DestroyBindGroupLayout(_ hal.BindGroupLayout) {}

// CreateBindGroup resolves each entry's buffer into the fixed binding
// table Dispatch consults.
func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	bg := &BindGroup{buffers: make(map[uint32]*Buffer, len(desc.Entries))}
	for _, entry := range desc.Entries {
		if buf, ok := entry.Buffer.(*Buffer); ok {
			bg.buffers[entry.Binding] = buf
		}
	}
	return bg, nil
}

// DestroyBindGroup is a no-op.
func (d *Device) DestroyBindGroup(_ hal.BindGroup) {}

// CreatePipelineLayout creates a placeholder layout.
func (d *Device) CreatePipelineLayout(_ *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	return &PipelineLayout{}, nil
}

// DestroyPipelineLayout is a no-op.
func (d *Device) DestroyPipelineLayout(_ hal.PipelineLayout) {}

// CreateComputePipeline binds a pipeline to one of the two ubershader
// group variants, read off the shader module's descriptor.
func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	var group dtype.Group
	if mod, ok := desc.Module.(*ShaderModule); ok {
		group = mod.Group
	}
	return &ComputePipeline{Group: group}, nil
}

// DestroyComputePipeline is a no-op.
func (d *Device) DestroyComputePipeline(_ hal.ComputePipeline) {}

// CreateCommandEncoder creates a CPU command encoder.
func (d *Device) CreateCommandEncoder(_ *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	return &CommandEncoder{}, nil
}

// CreateFence creates a fence with an atomic counter.
func (d *Device) CreateFence() (hal.Fence, error) {
	return &Fence{}, nil
}

// DestroyFence is a no-op.
func (d *Device) DestroyFence(_ hal.Fence) {}

// Wait reports whether the fence's atomic counter has reached value.
// The CPU backend signals fences synchronously at Submit, so this never
// actually blocks.
func (d *Device) Wait(fence hal.Fence, value uint64, _ time.Duration) (bool, error) {
	f, ok := fence.(*Fence)
	if !ok {
		return true, nil
	}
	return f.value.Load() >= value, nil
}

// WaitIdle is a no-op: dispatch runs synchronously within Submit.
func (d *Device) WaitIdle() error { return nil }

// Destroy is a no-op.
func (d *Device) Destroy() {}
