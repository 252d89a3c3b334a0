// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ubercore

import "math"

// Registers holds the four virtual registers a ubershader invocation reads
// inputs into and computes through. Register 1 (index 0 in this zero-based
// slice) is the "primary" operand and, by the compiler's calling
// convention, always holds the result a fused chain eventually writes back.
//
// Values are stored as raw bit patterns. For Group32 only the low 32 bits
// are meaningful; for Group64 the full 64 bits are used. Interpretation
// (float vs signed vs unsigned) is supplied per call via Kind, not stored
// on the Registers value itself, mirroring the GPU ubershader which has no
// register tag bits either - the op-code alone determines interpretation.
type Registers struct {
	R [4]uint64
}

// SELU constants, matching the reference formula (spec §8 / §4.4).
const (
	seluAlpha = 1.6732632423543772
	seluScale = 1.0507009873554805
)

func getF32(bits uint64) float32 { return math.Float32frombits(uint32(bits)) }
func setF32(f float32) uint64    { return uint64(math.Float32bits(f)) }
func getI32(bits uint64) int32   { return int32(uint32(bits)) }
func setI32(v int32) uint64      { return uint64(uint32(v)) }
func getU32(bits uint64) uint32  { return uint32(bits) }
func setU32(v uint32) uint64     { return uint64(v) }
func getF64(bits uint64) float64 { return math.Float64frombits(bits) }
func setF64(f float64) uint64    { return math.Float64bits(f) }
func getI64(bits uint64) int64   { return int64(bits) }
func setI64(v int64) uint64      { return uint64(v) }

// Apply executes op against regs, reading whatever secondary registers the
// op's arity requires and writing the result back into register 1
// (regs.R[0]). group selects the 32-bit or 64-bit ubershader variant;
// kind selects how the primary register's bits are interpreted for ops
// whose behavior depends on signedness (increment, negate, abs, sign, ...).
// Casts (which change Kind/width by definition) take their target
// interpretation from the op itself plus meta, not from kind.
func Apply(op OpCode, group Group, kind Kind, regs *Registers, meta Metadata) {
	switch {
	case IsUnary(op):
		applyUnary(op, group, kind, regs, meta)
	case IsBinary(op):
		applyBinary(op, group, kind, regs, meta)
	case IsTernary(op):
		applyTernary(op, regs)
	default:
		if i, j, ok := IsSwap(op); ok {
			regs.R[i], regs.R[j] = regs.R[j], regs.R[i]
			return
		}
		panic(unknownOpPanic(op))
	}
}

func applyUnary(op OpCode, group Group, kind Kind, regs *Registers, meta Metadata) {
	r := &regs.R[0]
	switch op {
	case OpIncrement:
		arith1(group, kind, r, func(f float64) float64 { return f + 1 },
			func(v int64) int64 { return v + 1 }, func(v uint64) uint64 { return v + 1 })
	case OpNegate:
		arith1(group, kind, r, func(f float64) float64 { return -f },
			func(v int64) int64 { return -v }, func(v uint64) uint64 { return -v })
	case OpAbs:
		arith1(group, kind, r, math.Abs,
			func(v int64) int64 {
				if v < 0 {
					return -v
				}
				return v
			},
			func(v uint64) uint64 { return v })
	case OpSquare:
		arith1(group, kind, r, func(f float64) float64 { return f * f },
			func(v int64) int64 { return v * v }, func(v uint64) uint64 { return v * v })
	case OpSqrt:
		floatOnly1(group, r, math.Sqrt)
	case OpSign:
		applySign(group, kind, r)
	case OpSigmoid:
		floatOnly1(group, r, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	case OpSoftplus:
		floatOnly1(group, r, func(x float64) float64 { return math.Log1p(math.Exp(x)) })
	case OpSoftsign:
		floatOnly1(group, r, func(x float64) float64 { return x / (1 + math.Abs(x)) })
	case OpExpm1:
		floatOnly1(group, r, math.Expm1)
	case OpSelu:
		floatOnly1(group, r, func(x float64) float64 {
			if x > 0 {
				return seluScale * x
			}
			return seluScale * seluAlpha * math.Expm1(x)
		})
	case OpCastToBool:
		applyCastToBool(group, kind, r)
	case OpCastNarrowInt:
		applyCastNarrowInt(r, meta)
	case OpCastClampFloatToInt:
		applyCastClampFloatToInt(group, r, meta)
	case OpCastIntToFloat:
		applyCastIntToFloat(group, kind, r)
	case OpCastWiden:
		// No-op at the register level: cross-group widening happens at the
		// Instruction boundary via the Encoder's write/read MemoryCast, not
		// inside a single fused dispatch (a dtype-group change always ends
		// the current Instruction - see the Fusion Compiler).
	default:
		panic(unknownOpPanic(op))
	}
}

// arith1 applies a float, signed, or unsigned function to register r
// according to kind, within the bit width implied by group.
func arith1(group Group, kind Kind, r *uint64, ff func(float64) float64, fi func(int64) int64, fu func(uint64) uint64) {
	switch group {
	case Group32:
		switch kind {
		case KindFloat:
			*r = setF32(float32(ff(float64(getF32(*r)))))
		case KindInt:
			*r = setI32(int32(fi(int64(getI32(*r)))))
		case KindUint:
			*r = setU32(uint32(fu(uint64(getU32(*r)))))
		}
	case Group64:
		switch kind {
		case KindFloat:
			*r = setF64(ff(getF64(*r)))
		case KindInt:
			*r = setI64(fi(getI64(*r)))
		case KindUint:
			*r = fu(*r)
		}
	}
}

// floatOnly1 applies a float-only transcendental function (sqrt,
// sigmoid, ...). It always reinterprets the register as a float of the
// group's width; it does not check the register's kind.
func floatOnly1(group Group, r *uint64, f func(float64) float64) {
	switch group {
	case Group32:
		*r = setF32(float32(f(float64(getF32(*r)))))
	case Group64:
		*r = setF64(f(getF64(*r)))
	}
}

func applySign(group Group, kind Kind, r *uint64) {
	switch group {
	case Group32:
		switch kind {
		case KindFloat:
			f := getF32(*r)
			*r = setF32(signFloat(f))
		case KindInt:
			*r = setI32(int32(signInt(int64(getI32(*r)))))
		case KindUint:
			v := getU32(*r)
			if v != 0 {
				*r = setU32(1)
			} else {
				*r = setU32(0)
			}
		}
	case Group64:
		switch kind {
		case KindFloat:
			*r = setF64(float64(signFloat(float32(getF64(*r)))))
		case KindInt:
			*r = setI64(signInt(getI64(*r)))
		case KindUint:
			if *r != 0 {
				*r = 1
			}
		}
	}
}

// signFloat returns 0 for +-0, else +-1, per the spec's sign contract.
func signFloat[T float32 | float64](f T) T {
	if f == 0 {
		return 0
	}
	if f < 0 {
		return -1
	}
	return 1
}

func signInt(v int64) int64 {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func applyCastToBool(group Group, kind Kind, r *uint64) {
	nonzero := false
	switch group {
	case Group32:
		switch kind {
		case KindFloat:
			nonzero = getF32(*r) != 0
		default:
			nonzero = getU32(*r) != 0
		}
	case Group64:
		switch kind {
		case KindFloat:
			nonzero = getF64(*r) != 0
		default:
			nonzero = *r != 0
		}
	}
	if nonzero {
		*r = setU32(1)
	} else {
		*r = setU32(0)
	}
}

// applyCastNarrowInt truncates the primary register to truncateMask bits
// and, if signBitMask is nonzero, sign-extends from that bit.
func applyCastNarrowInt(r *uint64, meta Metadata) {
	truncateMask, signBitMask := meta.narrowMasks()
	v := getU32(*r) & truncateMask
	if signBitMask != 0 && v&signBitMask != 0 {
		v |= ^truncateMask
	}
	*r = setU32(v)
}

// applyCastClampFloatToInt clamps the primary float register to
// [lower, upper] and truncates toward zero, matching cast_f32_to_i32.
func applyCastClampFloatToInt(group Group, r *uint64, meta Metadata) {
	lower, upper := meta.clampBounds()
	var f float64
	switch group {
	case Group32:
		f = float64(getF32(*r))
	case Group64:
		f = getF64(*r)
	}
	if math.IsNaN(f) {
		*r = setI32(0)
		return
	}
	clamped := f
	if clamped < float64(lower) {
		clamped = float64(lower)
	}
	if clamped > float64(upper) {
		clamped = float64(upper)
	}
	*r = setI32(int32(clamped))
}

func applyCastIntToFloat(group Group, kind Kind, r *uint64) {
	switch group {
	case Group32:
		var f float32
		if kind == KindUint {
			f = float32(getU32(*r))
		} else {
			f = float32(getI32(*r))
		}
		*r = setF32(f)
	case Group64:
		var f float64
		if kind == KindUint {
			f = float64(*r)
		} else {
			f = float64(getI64(*r))
		}
		*r = setF64(f)
	}
}

func applyBinary(op OpCode, group Group, kind Kind, regs *Registers, meta Metadata) {
	a, b := &regs.R[0], regs.R[1]
	switch op {
	case OpAdd:
		arith2(group, kind, a, b, func(x, y float64) float64 { return x + y },
			func(x, y int64) int64 { return x + y }, func(x, y uint64) uint64 { return x + y })
	case OpSub:
		arith2(group, kind, a, b, func(x, y float64) float64 { return x - y },
			func(x, y int64) int64 { return x - y }, func(x, y uint64) uint64 { return x - y })
	case OpMul:
		arith2(group, kind, a, b, func(x, y float64) float64 { return x * y },
			func(x, y int64) int64 { return x * y }, func(x, y uint64) uint64 { return x * y })
	case OpDiv:
		arith2(group, kind, a, b, func(x, y float64) float64 { return x / y },
			func(x, y int64) int64 {
				if y == 0 {
					return 0
				}
				return x / y
			},
			func(x, y uint64) uint64 {
				if y == 0 {
					return 0
				}
				return x / y
			})
	case OpCompare:
		applyCompare(group, kind, a, b, meta)
	default:
		panic(unknownOpPanic(op))
	}
}

func arith2(group Group, kind Kind, a *uint64, b uint64, ff func(x, y float64) float64, fi func(x, y int64) int64, fu func(x, y uint64) uint64) {
	switch group {
	case Group32:
		switch kind {
		case KindFloat:
			*a = setF32(float32(ff(float64(getF32(*a)), float64(getF32(b)))))
		case KindInt:
			*a = setI32(int32(fi(int64(getI32(*a)), int64(getI32(b)))))
		case KindUint:
			*a = setU32(uint32(fu(uint64(getU32(*a)), uint64(getU32(b)))))
		}
	case Group64:
		switch kind {
		case KindFloat:
			*a = setF64(ff(getF64(*a), getF64(b)))
		case KindInt:
			*a = setI64(fi(getI64(*a), getI64(b)))
		case KindUint:
			*a = fu(*a, b)
		}
	}
}

func applyCompare(group Group, kind Kind, a *uint64, b uint64, meta Metadata) {
	code, invert := meta.compareCode()
	var lt, eq bool
	switch group {
	case Group32:
		switch kind {
		case KindFloat:
			x, y := getF32(*a), getF32(b)
			lt, eq = x < y, x == y
		case KindInt:
			x, y := getI32(*a), getI32(b)
			lt, eq = x < y, x == y
		case KindUint:
			x, y := getU32(*a), getU32(b)
			lt, eq = x < y, x == y
		}
	case Group64:
		switch kind {
		case KindFloat:
			x, y := getF64(*a), getF64(b)
			lt, eq = x < y, x == y
		case KindInt:
			x, y := getI64(*a), getI64(b)
			lt, eq = x < y, x == y
		case KindUint:
			x, y := *a, b
			lt, eq = x < y, x == y
		}
	}
	var result bool
	switch code {
	case 0:
		result = eq
	case 1:
		result = lt
	case 2:
		result = !lt && !eq
	default:
		panic("ubercore: invalid compare code")
	}
	if invert {
		result = !result
	}
	if result {
		*a = setI32(1)
	} else {
		*a = setI32(0)
	}
}

func applyTernary(op OpCode, regs *Registers) {
	switch op {
	case OpSelect:
		cond := regs.R[0]
		if cond != 0 {
			regs.R[0] = regs.R[1]
		} else {
			regs.R[0] = regs.R[2]
		}
	default:
		panic(unknownOpPanic(op))
	}
}

func unknownOpPanic(op OpCode) string {
	return "ubercore: op-code " + itoa(uint16(op)) + " is not a recognized ubershader instruction"
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
