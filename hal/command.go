// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

// CommandEncoder records device commands.
// Command encoders are single-use - after EndEncoding, they cannot be reused.
type CommandEncoder interface {
	// BeginEncoding begins command recording with an optional label.
	BeginEncoding(label string) error

	// EndEncoding finishes command recording and returns a command buffer.
	// After this call, the encoder cannot be used again.
	EndEncoding() (CommandBuffer, error)

	// DiscardEncoding discards the encoder without creating a command buffer.
	DiscardEncoding()

	// CopyBufferToBuffer copies data between buffers. Used to materialize
	// ExplicitCopy instructions.
	CopyBufferToBuffer(src, dst Buffer, regions []BufferCopy)

	// BeginComputePass begins a compute pass.
	// Returns a compute pass encoder for recording the ubershader dispatch.
	BeginComputePass(desc *ComputePassDescriptor) ComputePassEncoder
}

// ComputePassDescriptor describes a compute pass.
type ComputePassDescriptor struct {
	Label string
}

// ComputePassEncoder records dispatch commands within a compute pass.
type ComputePassEncoder interface {
	// End finishes the compute pass.
	End()

	// SetPipeline sets the active compute pipeline (a ubershader variant).
	SetPipeline(pipeline ComputePipeline)

	// SetBindGroup sets a bind group for the given index.
	SetBindGroup(index uint32, group BindGroup)

	// Dispatch dispatches the ubershader over ceil(elementCount/vectorWidth)
	// threads. workgroups is the grid size the caller has already computed.
	Dispatch(workgroups uint32)
}

// BufferCopy defines a buffer-to-buffer copy region.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}
