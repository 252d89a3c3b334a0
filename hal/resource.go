// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

// Resource is the base interface for all GPU resources.
// Resources must be explicitly destroyed to free GPU memory.
type Resource interface {
	// Destroy releases the GPU resource.
	// After this call, the resource must not be used.
	// Calling Destroy multiple times is undefined behavior.
	Destroy()
}

// Buffer represents a GPU buffer.
// Buffers are contiguous memory regions accessible by the GPU.
type Buffer interface {
	Resource
}

// ShaderModule holds the ubershader program for a dispatch. There are
// exactly two variants (32-bit and 64-bit wide, see package ubercore);
// ShaderModule does not carry a compiled-from-source payload, since the
// ubershader is a fixed interpreter, not generated per batch.
type ShaderModule interface {
	Resource
}

// BindGroupLayout defines the layout of a bind group.
// Layouts specify the structure of resource bindings for shaders.
type BindGroupLayout interface {
	Resource
}

// BindGroup represents bound resources.
// Bind groups associate actual resources with bind group layouts.
type BindGroup interface {
	Resource
}

// PipelineLayout defines the layout of a pipeline.
// Pipeline layouts specify the bind group layouts used by a pipeline.
type PipelineLayout interface {
	Resource
}

// ComputePipeline is a configured compute pipeline.
// Compute pipelines define the compute shader and resource layout.
type ComputePipeline interface {
	Resource
}

// CommandBuffer holds recorded GPU commands.
// Command buffers are immutable after encoding and can be submitted to a queue.
type CommandBuffer interface {
	Resource
}

// Fence is a GPU synchronization primitive.
// Fences allow CPU-GPU synchronization via signaled values; batches
// complete in submission order (see package tracker).
type Fence interface {
	Resource
}
