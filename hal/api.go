// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

import "time"

// Variant identifies a backend implementation. Unlike the rendering HAL
// this package descends from, there is no Vulkan/Metal/DX12/GL family
// here - a tensor JIT dispatches through exactly two kinds of backend:
// a pure-Go host-executing one (hal/cpu) and a plumbing-only one used to
// exercise the Encoder without real numeric results (hal/noop).
type Variant uint8

const (
	VariantCPU Variant = iota
	VariantNoop
)

func (v Variant) String() string {
	switch v {
	case VariantCPU:
		return "cpu"
	case VariantNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Backend identifies a graphics backend implementation.
// Backends are registered globally and provide factory methods for instances.
type Backend interface {
	// Variant returns the backend type identifier.
	Variant() Variant

	// CreateInstance creates a new GPU instance with the given configuration.
	CreateInstance(desc *InstanceDescriptor) (Instance, error)
}

// Instance is the entry point for GPU operations.
// An instance manages adapter enumeration.
type Instance interface {
	// EnumerateAdapters enumerates available physical devices. A tensor
	// JIT backend typically exposes exactly one.
	EnumerateAdapters() []ExposedAdapter

	// Destroy releases the instance.
	Destroy()
}

// ExposedAdapter bundles an adapter with its capabilities.
// This is returned by Instance.EnumerateAdapters.
type ExposedAdapter struct {
	// Adapter is the physical device.
	Adapter Adapter

	// Name is a human-readable device name.
	Name string

	// Capabilities contains detailed capability information.
	Capabilities Capabilities
}

// Adapter represents a physical compute device.
// Adapters are enumerated from instances and provide capability queries.
type Adapter interface {
	// Open opens a logical device with the requested limits.
	Open(limits Limits) (OpenDevice, error)

	// Destroy releases the adapter.
	Destroy()
}

// OpenDevice is returned when Adapter.Open succeeds.
// It bundles the device and queue together since they're created atomically.
type OpenDevice struct {
	Device Device
	Queue  Queue
}

// Device represents a logical compute device.
// Devices are used to create resources and command encoders.
//
// This interface is trimmed from the teacher's rendering-oriented
// hal.Device: no Texture/Sampler/RenderPipeline/Surface/QuerySet/
// RenderBundle methods exist here, since an elementwise tensor JIT has no
// rasterization surface to present to (see DESIGN.md).
type Device interface {
	// CreateBuffer creates a device buffer.
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)

	// DestroyBuffer destroys a device buffer.
	DestroyBuffer(buffer Buffer)

	// CreateShaderModule installs the ubershader program for a given
	// dtype.Group variant.
	CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModule, error)

	// DestroyShaderModule destroys a shader module.
	DestroyShaderModule(module ShaderModule)

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)

	// DestroyBindGroupLayout destroys a bind group layout.
	DestroyBindGroupLayout(layout BindGroupLayout)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)

	// DestroyBindGroup destroys a bind group.
	DestroyBindGroup(group BindGroup)

	// CreatePipelineLayout creates a pipeline layout.
	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)

	// DestroyPipelineLayout destroys a pipeline layout.
	DestroyPipelineLayout(layout PipelineLayout)

	// CreateComputePipeline creates a compute pipeline bound to one of the
	// two ubershader variants.
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)

	// DestroyComputePipeline destroys a compute pipeline.
	DestroyComputePipeline(pipeline ComputePipeline)

	// CreateCommandEncoder creates a command encoder.
	CreateCommandEncoder(desc *CommandEncoderDescriptor) (CommandEncoder, error)

	// CreateFence creates a synchronization fence.
	CreateFence() (Fence, error)

	// DestroyFence destroys a fence.
	DestroyFence(fence Fence)

	// Wait waits for a fence to reach the specified value.
	// Returns true if the fence reached the value, false if timeout.
	// Returns ErrDeviceLost if the device is lost.
	Wait(fence Fence, value uint64, timeout time.Duration) (bool, error)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device.
	Destroy()
}

// Queue handles command submission.
// Queues are typically thread-safe (backend-specific).
type Queue interface {
	// Submit submits command buffers to the device.
	// If fence is not nil, it will be signaled with fenceValue when commands complete.
	Submit(commandBuffers []CommandBuffer, fence Fence, fenceValue uint64) error

	// WriteBuffer writes data to a buffer immediately. Used by the
	// Encoder for each dispatch's params, op-code, and metadata buffers;
	// initialize_tensor and the Constant Folder write through
	// HostAccessible.WriteData instead.
	WriteBuffer(buffer Buffer, offset uint64, data []byte)
}
