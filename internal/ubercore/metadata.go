// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ubercore

import "encoding/binary"

// Metadata is the 8-byte inline blob an op-code may carry, laid out by the
// Encoder in the same FIFO order the Fusion Compiler assigned.
type Metadata [8]byte

// ClampBounds packs the (lowerBound, upperBound) pair for
// OpCastClampFloatToInt, both as int32 bit patterns.
func ClampBounds(lower, upper int32) Metadata {
	var m Metadata
	binary.LittleEndian.PutUint32(m[0:4], uint32(lower))
	binary.LittleEndian.PutUint32(m[4:8], uint32(upper))
	return m
}

func (m Metadata) clampBounds() (lower, upper int32) {
	lower = int32(binary.LittleEndian.Uint32(m[0:4]))
	upper = int32(binary.LittleEndian.Uint32(m[4:8]))
	return
}

// NarrowMasks packs the (truncateMask, signBitMask) pair for
// OpCastNarrowInt.
func NarrowMasks(truncateMask, signBitMask uint32) Metadata {
	var m Metadata
	binary.LittleEndian.PutUint32(m[0:4], truncateMask)
	binary.LittleEndian.PutUint32(m[4:8], signBitMask)
	return m
}

func (m Metadata) narrowMasks() (truncateMask, signBitMask uint32) {
	truncateMask = binary.LittleEndian.Uint32(m[0:4])
	signBitMask = binary.LittleEndian.Uint32(m[4:8])
	return
}

// CompareMeta packs the (code, invert) pair for OpCompare. code must be
// 0 (==), 1 (<), or 2 (>).
func CompareMeta(code uint8, invert bool) Metadata {
	var m Metadata
	m[0] = code
	if invert {
		m[1] = 1
	}
	return m
}

func (m Metadata) compareCode() (code uint8, invert bool) {
	return m[0], m[1] != 0
}
