// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import "github.com/gogpu/tensorjit/hal"

// CommandEncoder implements hal.CommandEncoder for the CPU backend by
// recording a list of closures, executed in order when the resulting
// CommandBuffer is submitted.
type CommandEncoder struct {
	recording bool
	commands  []func()
}

// BeginEncoding marks the encoder as recording.
func (e *CommandEncoder) BeginEncoding(_ string) error {
	e.recording = true
	e.commands = nil
	return nil
}

// EndEncoding finishes recording and returns the recorded command buffer.
func (e *CommandEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.recording = false
	return &CommandBuffer{commands: e.commands}, nil
}

// DiscardEncoding discards everything recorded so far.
func (e *CommandEncoder) DiscardEncoding() {
	e.recording = false
	e.commands = nil
}

// CopyBufferToBuffer records a real byte-range copy.
func (e *CommandEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	srcBuf, srcOK := src.(*Buffer)
	dstBuf, dstOK := dst.(*Buffer)
	if !srcOK || !dstOK {
		return
	}
	e.commands = append(e.commands, func() {
		for _, r := range regions {
			srcBuf.mu.RLock()
			data := make([]byte, r.Size)
			copy(data, srcBuf.data[r.SrcOffset:r.SrcOffset+r.Size])
			srcBuf.mu.RUnlock()

			dstBuf.mu.Lock()
			copy(dstBuf.data[r.DstOffset:r.DstOffset+r.Size], data)
			dstBuf.mu.Unlock()
		}
	})
}

// BeginComputePass begins a compute pass and returns an encoder that
// accumulates the pipeline/bind group state for the eventual Dispatch.
func (e *CommandEncoder) BeginComputePass(_ *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return &ComputePassEncoder{enc: e}
}

// CommandBuffer holds the closures an encoding session recorded.
type CommandBuffer struct {
	Resource
	commands []func()
}

// ComputePassEncoder implements hal.ComputePassEncoder for the CPU
// backend. SetPipeline and SetBindGroup must be called before Dispatch;
// Dispatch captures their current values into a closure appended to the
// owning CommandEncoder.
type ComputePassEncoder struct {
	enc       *CommandEncoder
	pipeline  *ComputePipeline
	bindGroup *BindGroup
}

// End is a no-op: dispatches are already recorded as they occur.
func (p *ComputePassEncoder) End() {}

// SetPipeline selects the ubershader group variant for subsequent dispatches.
func (p *ComputePassEncoder) SetPipeline(pipeline hal.ComputePipeline) {
	if pp, ok := pipeline.(*ComputePipeline); ok {
		p.pipeline = pp
	}
}

// SetBindGroup selects the buffers subsequent dispatches read and write.
func (p *ComputePassEncoder) SetBindGroup(_ uint32, group hal.BindGroup) {
	if bg, ok := group.(*BindGroup); ok {
		p.bindGroup = bg
	}
}

// Dispatch records the actual ubershader execution: it reads the params,
// op-code, and metadata buffers out of the bound bind group and runs
// ubercore.Run over the bound input/output buffers.
func (p *ComputePassEncoder) Dispatch(_ uint32) {
	pipeline, bindGroup := p.pipeline, p.bindGroup
	if pipeline == nil || bindGroup == nil {
		return
	}
	p.enc.commands = append(p.enc.commands, func() {
		runDispatch(bindGroup)
	})
}
