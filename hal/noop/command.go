// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import "github.com/gogpu/tensorjit/hal"

// CommandEncoder implements hal.CommandEncoder for the noop backend.
// Recording is tracked only enough to catch encoder-misuse bugs in the
// Encoder layer; no commands are actually materialized.
type CommandEncoder struct {
	recording bool
}

// BeginEncoding marks the encoder as recording.
func (e *CommandEncoder) BeginEncoding(_ string) error {
	e.recording = true
	return nil
}

// EndEncoding finishes recording and returns a placeholder command buffer.
func (e *CommandEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.recording = false
	return &Resource{}, nil
}

// DiscardEncoding discards the encoder.
func (e *CommandEncoder) DiscardEncoding() {
	e.recording = false
}

// CopyBufferToBuffer is a no-op; no buffer in this backend holds data.
func (e *CommandEncoder) CopyBufferToBuffer(_, _ hal.Buffer, _ []hal.BufferCopy) {}

// BeginComputePass returns a noop compute pass encoder.
func (e *CommandEncoder) BeginComputePass(_ *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return &ComputePassEncoder{}
}

// ComputePassEncoder implements hal.ComputePassEncoder for the noop backend.
type ComputePassEncoder struct{}

// End is a no-op.
func (p *ComputePassEncoder) End() {}

// SetPipeline is a no-op.
func (p *ComputePassEncoder) SetPipeline(_ hal.ComputePipeline) {}

// SetBindGroup is a no-op.
func (p *ComputePassEncoder) SetBindGroup(_ uint32, _ hal.BindGroup) {}

// Dispatch is a no-op: the noop backend never executes a ubershader.
func (p *ComputePassEncoder) Dispatch(_ uint32) {}
