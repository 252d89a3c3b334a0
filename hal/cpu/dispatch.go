// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import "github.com/gogpu/tensorjit/internal/ubercore"

// runDispatch decodes the bound params/op-code/metadata buffers and
// executes the fused instruction across every element, matching exactly
// what a real GPU ubershader invocation would do with the same bytes.
func runDispatch(bg *BindGroup) {
	params := ubercore.UnmarshalDispatchParams(bg.buffers[BindingParams].GetData())
	opcodes := ubercore.UnmarshalOpCodes(bg.buffers[BindingOpCodes].GetData())

	var metadata []byte
	if mb, ok := bg.buffers[BindingMetadata]; ok {
		metadata = mb.GetData()
	}

	var inputs [4][]byte
	inputBindings := [4]uint32{BindingInput0, BindingInput1, BindingInput2, BindingInput3}
	for i := 0; i < int(params.NumInputs); i++ {
		inputs[i] = bg.buffers[inputBindings[i]].GetData()
	}

	output := bg.buffers[BindingOutput]
	out := make([]byte, len(output.GetData()))
	ubercore.Run(params, opcodes, metadata, inputs, out)
	output.WriteData(0, out)
}
