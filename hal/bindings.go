// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

// Fixed binding slots every backend and the Encoder agree on for a
// ubershader dispatch's bind group. A real GPU backend's shader would
// read these same bindings through its own binding table; hal/cpu reads
// them directly since it runs the interpreter in-process.
const (
	BindingParams   uint32 = 0
	BindingOpCodes  uint32 = 1
	BindingMetadata uint32 = 2
	BindingInput0   uint32 = 3
	BindingInput1   uint32 = 4
	BindingInput2   uint32 = 5
	BindingInput3   uint32 = 6
	BindingOutput   uint32 = 7
)
