// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ubercore

import "github.com/gogpu/tensorjit/dtype"

// Group and Kind are aliases for the dtype package's enums so that a
// single value - say, a Tensor's dtype.Group - flows unchanged from the
// Allocation Table through the Encoder and into the interpreter, with no
// conversion at any package boundary.
type (
	Group = dtype.Group
	Kind  = dtype.Kind
)

const (
	Group32 = dtype.Group32
	Group64 = dtype.Group64

	KindFloat = dtype.KindFloat
	KindInt   = dtype.KindInt
	KindUint  = dtype.KindUint
)
