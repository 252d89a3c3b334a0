// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package tensorjit implements the JIT operation-fusion pipeline and
// execution runtime for an eager-execution GPU tensor backend: a stream
// of single tensor operations submitted one at a time is coalesced into
// fused ubershader dispatches, with the same observable result a
// reference CPU implementation would produce.
//
// Device is the external interface: it owns an Allocation Table
// (internal/alloc), a Command Stream (internal/stream), a Fusion
// Compiler (internal/fusion), an Encoder (internal/encode), a Heap
// Allocator (internal/heap), a Constant Folder (internal/constfold), and
// a Completion Tracker (internal/tracker), all serialized behind a
// single mutex per the concurrency model described in DESIGN.md.
//
// Tensor shape manipulation, the front-end wrapper type, dtype
// reflection, and a CLI are explicitly out of scope - this package is
// the core runtime a front end is built on top of, not the front end
// itself.
package tensorjit
