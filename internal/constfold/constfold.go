// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package constfold implements the Constant Folder: host-side evaluation
// of a fused instruction over single-element tensors, where dispatching a
// real ubershader invocation would cost more than just computing the
// answer directly.
//
// It calls internal/ubercore.Run with the ElementCount it is given; the
// root Device only folds when Eligible holds, so that count is always 1
// (lane count 1). It reads and writes plain host []byte slices instead
// of hal.Buffer. This is the same Run function hal/cpu's
// Dispatch calls, so a folded result and a dispatched one agree bit for
// bit by construction, not merely by test coverage.
package constfold

import "github.com/gogpu/tensorjit/internal/ubercore"

// MaxFoldableElements is the element count a tensor must have to be
// eligible for constant folding: the Constant Folder "operat[es] on a
// single scalar at a time" (§4.6), so only a true scalar ever qualifies
// - a 2-element tensor, however small its byte size, always goes through
// the Command Stream like any other operation.
const MaxFoldableElements = 1

// Eligible reports whether a tensor with the given element count is
// small enough to fold on the host instead of dispatching.
func Eligible(elementCount int64) bool {
	return elementCount == MaxFoldableElements
}

// Fold evaluates one fused instruction over host-resident input bytes,
// writing the result into output. params, opcodes, and metadata use
// exactly the wire format internal/encode writes for a real dispatch.
func Fold(params ubercore.DispatchParams, opcodes []ubercore.OpCode, metadata []byte, inputs [4][]byte, output []byte) {
	ubercore.Run(params, opcodes, metadata, inputs, output)
}
