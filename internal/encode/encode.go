// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package encode implements the Encoder: it turns one flush's
// Instructions into the wire format a ubershader dispatch reads
// (DispatchParams, op-code array, metadata blob), materializes any
// allocation that still lacks a backing buffer, and submits the whole
// batch through the Completion Tracker.
//
// Grounded on hal/cpu/cpu_test.go's dispatch helper, generalized from
// "one hand-built Instruction for a test" into "every Instruction a
// flush produced, recorded into a single CommandEncoder and submitted
// together as one batch."
package encode

import (
	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/fusion"
	"github.com/gogpu/tensorjit/internal/heap"
	"github.com/gogpu/tensorjit/internal/tracker"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

// Encoder lays out and submits fused Instructions against one hal.Device.
// It caches the two ubershader pipeline variants (Group32, Group64) and
// a single bind group layout across calls, since neither depends on any
// particular Instruction.
type Encoder struct {
	device  hal.Device
	queue   hal.Queue
	table   *alloc.Table
	heap    *heap.Heap
	tracker *tracker.Tracker

	layout    hal.BindGroupLayout
	pipelines map[ubercore.Group]hal.ComputePipeline
}

// New builds an Encoder over an open device/queue pair, the Allocation
// Table and Heap Allocator it materializes buffers through, and the
// Completion Tracker it submits batches to.
func New(device hal.Device, queue hal.Queue, table *alloc.Table, h *heap.Heap, tr *tracker.Tracker) (*Encoder, error) {
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{})
	if err != nil {
		return nil, err
	}
	return &Encoder{
		device:    device,
		queue:     queue,
		table:     table,
		heap:      h,
		tracker:   tr,
		layout:    layout,
		pipelines: make(map[ubercore.Group]hal.ComputePipeline),
	}, nil
}

// Encode materializes, lays out, and submits the given Instructions as
// one batch, returning its BatchID. onComplete (may be nil) is invoked
// after every Instruction's output has been marked initialized, running
// on the Completion Tracker's worker goroutine - callers that touch
// Device state from it must take the Device's own lock themselves.
func (e *Encoder) Encode(instructions []*fusion.Instruction, onComplete func(alloc.BatchID)) (alloc.BatchID, error) {
	if len(instructions) == 0 {
		return 0, nil
	}

	for _, inst := range instructions {
		if err := e.materialize(inst); err != nil {
			return 0, err
		}
	}

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{})
	if err != nil {
		return 0, err
	}
	if err := encoder.BeginEncoding("batch"); err != nil {
		return 0, err
	}

	for _, inst := range instructions {
		if inst.Kind == fusion.ExplicitCopy {
			if err := e.recordCopy(encoder, inst); err != nil {
				encoder.DiscardEncoding()
				return 0, err
			}
			continue
		}
		if err := e.recordDispatch(encoder, inst); err != nil {
			encoder.DiscardEncoding()
			return 0, err
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return 0, err
	}

	fence, err := e.device.CreateFence()
	if err != nil {
		return 0, err
	}

	outputs := make([]alloc.AllocationID, 0, len(instructions))
	for _, inst := range instructions {
		outputs = append(outputs, instructionOutput(inst))
	}

	batch := e.tracker.Submit(e.queue, cmdBuf, fence, e.device, func(b alloc.BatchID) {
		for _, id := range outputs {
			_ = e.table.MarkInitialized(id)
		}
		if onComplete != nil {
			onComplete(b)
		}
	})

	for _, inst := range instructions {
		out := instructionOutput(inst)
		_ = e.table.RecordWrite(out, batch)
		for _, in := range instructionInputs(inst) {
			_ = e.table.RecordRead(in, batch)
		}
	}

	return batch, nil
}

func instructionOutput(inst *fusion.Instruction) alloc.AllocationID {
	if inst.Kind == fusion.ExplicitCopy {
		return inst.CopyDst
	}
	return inst.Output
}

func instructionInputs(inst *fusion.Instruction) []alloc.AllocationID {
	if inst.Kind == fusion.ExplicitCopy {
		return []alloc.AllocationID{inst.CopySrc}
	}
	return inst.Inputs
}

// materialize ensures every allocation an Instruction touches has a
// backing buffer, lazily requesting one from the Heap Allocator - an
// allocation can be appended to many fused operations, or folded away
// entirely, before ever needing real device memory.
func (e *Encoder) materialize(inst *fusion.Instruction) error {
	for _, id := range instructionInputs(inst) {
		if err := e.materializeOne(id); err != nil {
			return err
		}
	}
	return e.materializeOne(instructionOutput(inst))
}

func (e *Encoder) materializeOne(id alloc.AllocationID) error {
	return e.table.Materialize(id, func(size int64) (alloc.BackingBuffer, error) {
		return e.heap.Malloc(size)
	})
}

func (e *Encoder) recordCopy(encoder hal.CommandEncoder, inst *fusion.Instruction) error {
	src, err := e.fetchBuffer(inst.CopySrc)
	if err != nil {
		return err
	}
	dst, err := e.fetchBuffer(inst.CopyDst)
	if err != nil {
		return err
	}
	srcAlloc, err := e.table.Fetch(inst.CopySrc)
	if err != nil {
		return err
	}
	encoder.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{Size: uint64(srcAlloc.ByteSize)}})
	return nil
}

func (e *Encoder) fetchBuffer(id alloc.AllocationID) (hal.Buffer, error) {
	a, err := e.table.Fetch(id)
	if err != nil {
		return nil, err
	}
	return a.Buffer.(hal.Buffer), nil
}

// recordDispatch writes the params/op-code/metadata buffers for one
// Instruction, builds its bind group, and records a compute dispatch
// against the pipeline matching its dtype group.
func (e *Encoder) recordDispatch(encoder hal.CommandEncoder, inst *fusion.Instruction) error {
	pipeline, err := e.pipelineFor(inst.Group)
	if err != nil {
		return err
	}

	params, err := e.dispatchParams(inst)
	if err != nil {
		return err
	}

	paramsBuf, err := e.device.CreateBuffer(&hal.BufferDescriptor{Size: uint64(len(params))})
	if err != nil {
		return err
	}
	e.queue.WriteBuffer(paramsBuf, 0, params)

	opcodesBytes := ubercore.MarshalOpCodes(inst.OpCodes)
	opcodesBuf, err := e.device.CreateBuffer(&hal.BufferDescriptor{Size: uint64(len(opcodesBytes))})
	if err != nil {
		return err
	}
	e.queue.WriteBuffer(opcodesBuf, 0, opcodesBytes)

	metaBytes := marshalMetadata(inst.Metadata)
	var metaBuf hal.Buffer
	if len(metaBytes) > 0 {
		metaBuf, err = e.device.CreateBuffer(&hal.BufferDescriptor{Size: uint64(len(metaBytes))})
		if err != nil {
			return err
		}
		e.queue.WriteBuffer(metaBuf, 0, metaBytes)
	}

	entries := []hal.BindGroupEntry{
		{Binding: hal.BindingParams, Buffer: paramsBuf},
		{Binding: hal.BindingOpCodes, Buffer: opcodesBuf},
	}
	if metaBuf != nil {
		entries = append(entries, hal.BindGroupEntry{Binding: hal.BindingMetadata, Buffer: metaBuf})
	}

	inputBindings := [4]uint32{hal.BindingInput0, hal.BindingInput1, hal.BindingInput2, hal.BindingInput3}
	for i, id := range inst.Inputs {
		buf, err := e.fetchBuffer(id)
		if err != nil {
			return err
		}
		entries = append(entries, hal.BindGroupEntry{Binding: inputBindings[i], Buffer: buf})
	}

	outBuf, err := e.fetchBuffer(inst.Output)
	if err != nil {
		return err
	}
	entries = append(entries, hal.BindGroupEntry{Binding: hal.BindingOutput, Buffer: outBuf})

	bindGroup, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{Layout: e.layout, Entries: entries})
	if err != nil {
		return err
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup)
	pass.Dispatch(workgroupCount(inst.ElementCount))
	pass.End()
	return nil
}

// workgroupCount is 1:1 with element count for the CPU backend, which has
// no notion of a vector-width-sized workgroup; a real GPU backend would
// divide by its dispatch's lane width and round up instead.
func workgroupCount(elementCount int64) uint32 {
	if elementCount <= 0 {
		return 0
	}
	return uint32(elementCount)
}

func (e *Encoder) dispatchParams(inst *fusion.Instruction) ([]byte, error) {
	p := ubercore.DispatchParams{
		ElementCount: uint32(inst.ElementCount),
		Group:        inst.Group,
		WriteKind:    inst.WriteKind,
		NumInputs:    uint8(len(inst.Inputs)),
		NumOps:       uint16(len(inst.OpCodes)),
	}

	for i, id := range inst.Inputs {
		a, err := e.table.Fetch(id)
		if err != nil {
			return nil, err
		}
		p.Reads[i] = ubercore.ReadParams{
			ElementWidth:    uint8(a.DType.Size()),
			Kind:            a.DType.Kind(),
			ScalarBroadcast: a.Shape.ElementCount() == 1 && inst.ElementCount > 1,
		}
	}

	out, err := e.table.Fetch(inst.Output)
	if err != nil {
		return nil, err
	}
	p.Write = ubercore.ReadParams{ElementWidth: uint8(out.DType.Size()), Kind: out.DType.Kind()}

	return p.MarshalBinary(), nil
}

func marshalMetadata(meta []ubercore.Metadata) []byte {
	buf := make([]byte, 0, len(meta)*8)
	for _, m := range meta {
		buf = append(buf, m[:]...)
	}
	return buf
}

func (e *Encoder) pipelineFor(group ubercore.Group) (hal.ComputePipeline, error) {
	if p, ok := e.pipelines[group]; ok {
		return p, nil
	}
	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Group: group})
	if err != nil {
		return nil, err
	}
	pipeline, err := e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{Module: module})
	if err != nil {
		return nil, err
	}
	e.pipelines[group] = pipeline
	return pipeline, nil
}
