// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/hal/cpu"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

func openDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := cpu.API{}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters()
	if len(adapters) != 1 {
		t.Fatalf("EnumerateAdapters returned %d, want 1", len(adapters))
	}
	open, err := adapters[0].Adapter.Open(hal.Limits{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return open.Device, open.Queue
}

func mustBuffer(t *testing.T, device hal.Device, size uint64) hal.Buffer {
	t.Helper()
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{Size: size})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	return buf
}

// dispatch builds a single-instruction bind group from the given
// op-codes and metadata and runs it end to end through the HAL surface,
// returning the raw output bytes.
func dispatch(t *testing.T, device hal.Device, queue hal.Queue, params ubercore.DispatchParams, opcodes []ubercore.OpCode, metadata []byte, input []byte, outputSize uint64) []byte {
	t.Helper()

	paramsBuf := mustBuffer(t, device, 64)
	queue.WriteBuffer(paramsBuf, 0, params.MarshalBinary())

	opcodesBuf := mustBuffer(t, device, uint64(len(opcodes)*2))
	queue.WriteBuffer(opcodesBuf, 0, ubercore.MarshalOpCodes(opcodes))

	metaBuf := mustBuffer(t, device, uint64(len(metadata)))
	if len(metadata) > 0 {
		queue.WriteBuffer(metaBuf, 0, metadata)
	}

	inputBuf := mustBuffer(t, device, uint64(len(input)))
	if len(input) > 0 {
		queue.WriteBuffer(inputBuf, 0, input)
	}

	outputBuf := mustBuffer(t, device, outputSize)

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout: %v", err)
	}
	bindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout: layout,
		Entries: []hal.BindGroupEntry{
			{Binding: cpu.BindingParams, Buffer: paramsBuf},
			{Binding: cpu.BindingOpCodes, Buffer: opcodesBuf},
			{Binding: cpu.BindingMetadata, Buffer: metaBuf},
			{Binding: cpu.BindingInput0, Buffer: inputBuf},
			{Binding: cpu.BindingOutput, Buffer: outputBuf},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}

	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{Group: params.Group})
	if err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}
	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{Module: module})
	if err != nil {
		t.Fatalf("CreateComputePipeline: %v", err)
	}

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{})
	if err != nil {
		t.Fatalf("CreateCommandEncoder: %v", err)
	}
	if err := encoder.BeginEncoding("test"); err != nil {
		t.Fatalf("BeginEncoding: %v", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup)
	pass.Dispatch(1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		t.Fatalf("EndEncoding: %v", err)
	}

	fence, err := device.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ok, err := device.Wait(fence, 1, time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok {
		t.Fatal("Wait returned false")
	}

	return outputBuf.(*cpu.Buffer).GetData()
}

func TestDispatchFloatIncrementChain(t *testing.T) {
	device, queue := openDevice(t)

	var input [4]byte
	binary.LittleEndian.PutUint32(input[:], math.Float32bits(101.0))

	opcodes := make([]ubercore.OpCode, 7)
	for i := range opcodes {
		opcodes[i] = ubercore.OpIncrement
	}

	params := ubercore.DispatchParams{
		ElementCount: 1,
		Group:        ubercore.Group32,
		WriteKind:    ubercore.KindFloat,
		NumInputs:    1,
		NumOps:       uint16(len(opcodes)),
		Reads:        [4]ubercore.ReadParams{{ElementWidth: 4, Kind: ubercore.KindFloat}},
		Write:        ubercore.ReadParams{ElementWidth: 4, Kind: ubercore.KindFloat},
	}

	out := dispatch(t, device, queue, params, opcodes, nil, input[:], 4)
	got := math.Float32frombits(binary.LittleEndian.Uint32(out))
	if got != 108.0 {
		t.Fatalf("got %v, want 108.0", got)
	}
}

func TestDispatchIncrementThenNarrowWrapsInt8(t *testing.T) {
	device, queue := openDevice(t)

	var input [4]byte
	binary.LittleEndian.PutUint32(input[:], uint32(int32(127)))

	opcodes := []ubercore.OpCode{ubercore.OpIncrement, ubercore.OpCastNarrowInt}
	meta := ubercore.NarrowMasks(0xFF, 0x80)

	params := ubercore.DispatchParams{
		ElementCount: 1,
		Group:        ubercore.Group32,
		WriteKind:    ubercore.KindInt,
		NumInputs:    1,
		NumOps:       uint16(len(opcodes)),
		Reads:        [4]ubercore.ReadParams{{ElementWidth: 4, Kind: ubercore.KindInt}},
		Write:        ubercore.ReadParams{ElementWidth: 1, Kind: ubercore.KindInt},
	}

	out := dispatch(t, device, queue, params, opcodes, meta[:], input[:], 1)
	got := int8(out[0])
	if got != -128 {
		t.Fatalf("got %v, want -128", got)
	}
}
