// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ubercore

import (
	"encoding/binary"
	"math"
)

// ReadParams describes how one input (or the output) is packed in device
// memory: the on-device element byte width, whether it is a scalar
// broadcast across the whole dispatch (the high bit of the source
// "layout" byte), and the Kind used to interpret its bits.
type ReadParams struct {
	ElementWidth    uint8 // 1, 2, 4, or 8
	Kind            Kind
	ScalarBroadcast bool
}

// Layout packs ReadParams into the single "layout" byte the ubershader
// contract describes: bit 7 set means scalar broadcast, low bits are the
// element byte width.
func (rp ReadParams) Layout() uint8 {
	l := rp.ElementWidth
	if rp.ScalarBroadcast {
		l |= 0x80
	}
	return l
}

// DispatchParams is the bit-exact wire descriptor the Encoder writes
// ahead of an op-code array and metadata blob, and that both the CPU
// backend and the Constant Folder decode identically.
type DispatchParams struct {
	ElementCount uint32
	Group        Group
	WriteKind    Kind
	NumInputs    uint8
	NumOps       uint16
	Reads        [4]ReadParams
	Write        ReadParams
}

// dispatchParamsSize is the fixed marshaled size of DispatchParams.
const dispatchParamsSize = 4 + 1 + 1 + 1 + 2 + 4*3 + 3

// MarshalBinary encodes p into the Encoder's params buffer layout.
func (p DispatchParams) MarshalBinary() []byte {
	buf := make([]byte, dispatchParamsSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.ElementCount)
	buf[4] = uint8(p.Group)
	buf[5] = uint8(p.WriteKind)
	buf[6] = p.NumInputs
	binary.LittleEndian.PutUint16(buf[7:9], p.NumOps)
	off := 9
	for _, r := range p.Reads {
		buf[off] = r.ElementWidth
		buf[off+1] = uint8(r.Kind)
		buf[off+2] = boolByte(r.ScalarBroadcast)
		off += 3
	}
	buf[off] = p.Write.ElementWidth
	buf[off+1] = uint8(p.Write.Kind)
	buf[off+2] = boolByte(p.Write.ScalarBroadcast)
	return buf
}

// UnmarshalDispatchParams decodes the Encoder's params buffer layout.
func UnmarshalDispatchParams(buf []byte) DispatchParams {
	var p DispatchParams
	p.ElementCount = binary.LittleEndian.Uint32(buf[0:4])
	p.Group = Group(buf[4])
	p.WriteKind = Kind(buf[5])
	p.NumInputs = buf[6]
	p.NumOps = binary.LittleEndian.Uint16(buf[7:9])
	off := 9
	for i := range p.Reads {
		p.Reads[i] = ReadParams{
			ElementWidth:    buf[off],
			Kind:            Kind(buf[off+1]),
			ScalarBroadcast: buf[off+2] != 0,
		}
		off += 3
	}
	p.Write = ReadParams{
		ElementWidth:    buf[off],
		Kind:            Kind(buf[off+1]),
		ScalarBroadcast: buf[off+2] != 0,
	}
	return p
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// MarshalOpCodes serializes an op-code array as little-endian uint16s, the
// layout the program counter walks during dispatch.
func MarshalOpCodes(ops []OpCode) []byte {
	buf := make([]byte, len(ops)*2)
	for i, op := range ops {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(op))
	}
	return buf
}

// UnmarshalOpCodes is the inverse of MarshalOpCodes.
func UnmarshalOpCodes(buf []byte) []OpCode {
	ops := make([]OpCode, len(buf)/2)
	for i := range ops {
		ops[i] = OpCode(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	return ops
}

// readLE reads up to 8 little-endian bytes into a uint64.
func readLE(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return v
}

// writeLE writes the low len(b) bytes of v, little-endian, into b.
func writeLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

func signExtend(raw uint64, bits int) int64 {
	shift := 64 - bits
	return int64(raw<<uint(shift)) >> uint(shift)
}

// DecodeElement reads the elem'th on-device value described by rp out of
// data and widens it to a register value for the given ubershader group.
func DecodeElement(data []byte, rp ReadParams, group Group, elem int) uint64 {
	idx := elem
	if rp.ScalarBroadcast {
		idx = 0
	}
	off := idx * int(rp.ElementWidth)
	raw := readLE(data[off : off+int(rp.ElementWidth)])

	switch rp.Kind {
	case KindFloat:
		switch rp.ElementWidth {
		case 4:
			f32 := math.Float32frombits(uint32(raw))
			if group == Group64 {
				return setF64(float64(f32))
			}
			return uint64(setF32(f32))
		case 8:
			return setF64(math.Float64frombits(raw))
		default:
			panic("ubercore: unsupported float element width")
		}
	case KindInt:
		se := signExtend(raw, int(rp.ElementWidth)*8)
		if group == Group32 {
			return uint64(setI32(int32(se)))
		}
		return setI64(se)
	case KindUint:
		if group == Group32 {
			return uint64(setU32(uint32(raw)))
		}
		return raw
	default:
		panic("ubercore: unknown read kind")
	}
}

// EncodeElement narrows a register value to the on-device representation
// described by wp and writes it into output at the elem'th slot.
func EncodeElement(output []byte, wp ReadParams, group Group, elem int, reg uint64) {
	off := elem * int(wp.ElementWidth)
	dst := output[off : off+int(wp.ElementWidth)]

	switch wp.Kind {
	case KindFloat:
		var f64 float64
		if group == Group32 {
			f64 = float64(getF32(reg))
		} else {
			f64 = getF64(reg)
		}
		switch wp.ElementWidth {
		case 4:
			writeLE(dst, uint64(math.Float32bits(float32(f64))))
		case 8:
			writeLE(dst, math.Float64bits(f64))
		default:
			panic("ubercore: unsupported float element width")
		}
	case KindInt, KindUint:
		var v uint64
		if group == Group32 {
			v = uint64(getU32(reg))
		} else {
			v = reg
		}
		mask := uint64(1)<<(uint(wp.ElementWidth)*8) - 1
		if wp.ElementWidth == 8 {
			mask = ^uint64(0)
		}
		writeLE(dst, v&mask)
	default:
		panic("ubercore: unknown write kind")
	}
}

// kindSequence precomputes, for each op in opcodes, the Kind that should
// be used to interpret register 1 when Apply executes that op - tracking
// the cast ops that change how subsequent ops must read the register.
func kindSequence(initial Kind, opcodes []OpCode, metadata []byte) ([]Kind, []int) {
	kinds := make([]Kind, len(opcodes))
	metaSlot := make([]int, len(opcodes))
	cur := initial
	mo := 0
	for i, op := range opcodes {
		kinds[i] = cur
		metaSlot[i] = -1
		if NeedsMetadata(op) {
			metaSlot[i] = mo
			if op == OpCastNarrowInt {
				off := mo * 8
				var m Metadata
				copy(m[:], metadata[off:off+8])
				if _, signBitMask := m.narrowMasks(); signBitMask != 0 {
					cur = KindInt
				} else {
					cur = KindUint
				}
			}
			mo++
		}
		switch op {
		case OpCastToBool:
			cur = KindUint
		case OpCastClampFloatToInt:
			cur = KindInt
		case OpCastIntToFloat:
			cur = KindFloat
		case OpCompare:
			cur = KindInt
		}
	}
	return kinds, metaSlot
}

// Run executes one Instruction's fused op-code sequence over every
// element in the dispatch, reading inputs and writing output through the
// memory-cast rules in params. It is the single function both the CPU
// backend (full vector width) and the Constant Folder (element count 1)
// call, which is what makes their agreement structural rather than
// merely tested.
func Run(params DispatchParams, opcodes []OpCode, metadata []byte, inputs [4][]byte, output []byte) {
	initialKind := params.Reads[0].Kind
	if params.NumInputs == 0 {
		initialKind = params.WriteKind
	}
	kinds, metaSlot := kindSequence(initialKind, opcodes, metadata)

	for elem := 0; elem < int(params.ElementCount); elem++ {
		var regs Registers
		for i := 0; i < int(params.NumInputs); i++ {
			regs.R[i] = DecodeElement(inputs[i], params.Reads[i], params.Group, elem)
		}
		for i, op := range opcodes {
			var m Metadata
			if slot := metaSlot[i]; slot >= 0 {
				off := slot * 8
				copy(m[:], metadata[off:off+8])
			}
			Apply(op, params.Group, kinds[i], &regs, m)
		}
		EncodeElement(output, params.Write, params.Group, elem, regs.R[0])
	}
}
