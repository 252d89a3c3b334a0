// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package cpu implements hal.Backend by actually executing the
// ubershader contract on the host, instead of faking GPU residency the
// way hal/noop does.
//
// Buffers are backed by real []byte storage. A compute dispatch reads
// the bound params, op-code, and metadata buffers - the same wire
// format the Encoder writes for a real GPU - and interprets them
// through package ubercore, one element per loop iteration on the
// calling goroutine (rather than the four/two lanes a GPU ubershader
// invocation would process). Because hal/cpu and the
// Constant Folder both drive the identical ubercore.Run loop, their
// numeric results agree by construction rather than by incidental
// testing.
//
// Backend selection treats hal/cpu as the default: it is the only
// backend that produces real tensor results, so SelectBestBackend
// prefers it over hal/noop.
package cpu
