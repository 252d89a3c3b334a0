// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

import "github.com/gogpu/tensorjit/dtype"

// InstanceDescriptor describes how to create a device instance.
type InstanceDescriptor struct {
	// Variant selects which backend to instantiate.
	Variant Variant
}

// Capabilities contains adapter capabilities relevant to a tensor JIT.
type Capabilities struct {
	// MaxBufferLength is the maximum size, in bytes, of a single buffer
	// allocation. Device passes it to Adapter.Open as a Limits value; the
	// Heap Allocator does not check requests against it.
	MaxBufferLength uint64

	// RecommendedMaxWorkingSetSize is the suggested ceiling, in bytes, for
	// total live device memory (the Heap Allocator's aggregate pressure
	// threshold).
	RecommendedMaxWorkingSetSize uint64

	// BufferAlignment is the required alignment for buffer copy offsets.
	BufferAlignment uint64
}

// Limits bounds what a Device will accept.
type Limits struct {
	MaxBufferLength uint64
}

// BufferDescriptor describes how to create a buffer.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size in bytes.
	Size uint64

	// MappedAtCreation creates the buffer pre-mapped for writing.
	MappedAtCreation bool
}

// BindGroupLayoutEntry describes one binding slot.
type BindGroupLayoutEntry struct {
	Binding  uint32
	ReadOnly bool
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupEntry binds a concrete buffer to a binding slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// PipelineLayoutDescriptor describes a pipeline layout.
type PipelineLayoutDescriptor struct {
	Label            string
	BindGroupLayouts []BindGroupLayout
}

// ShaderModuleDescriptor selects which ubershader variant a shader module
// represents. There is no source text: the ubershader is the fixed
// interpreter in package ubercore, not a per-dispatch compiled artifact.
type ShaderModuleDescriptor struct {
	Label string

	// Group selects the 32-bit-wide or 64-bit-wide ubershader variant.
	Group dtype.Group
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label  string
	Layout PipelineLayout
	Module ShaderModule
}

// CommandEncoderDescriptor describes a command encoder.
type CommandEncoderDescriptor struct {
	Label string
}
