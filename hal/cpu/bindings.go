// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import "github.com/gogpu/tensorjit/hal"

// Re-exported so existing callers in this package's tests keep working
// unchanged; the canonical definition lives on package hal since the
// Encoder needs the same convention without importing a specific
// backend.
const (
	BindingParams   = hal.BindingParams
	BindingOpCodes  = hal.BindingOpCodes
	BindingMetadata = hal.BindingMetadata
	BindingInput0   = hal.BindingInput0
	BindingInput1   = hal.BindingInput1
	BindingInput2   = hal.BindingInput2
	BindingInput3   = hal.BindingInput3
	BindingOutput   = hal.BindingOutput
)
