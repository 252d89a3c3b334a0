// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package fusion

import (
	"testing"

	"github.com/gogpu/tensorjit/dtype"
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/stream"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

func newTable() *alloc.Table { return alloc.NewTable(nil) }

func mustShape(t *testing.T, dims ...int64) dtype.Shape {
	t.Helper()
	s, err := dtype.NewShape(dims...)
	if err != nil {
		t.Fatalf("NewShape: %v", err)
	}
	return s
}

func unary(op ubercore.OpCode, in, out alloc.AllocationID, group ubercore.Group) stream.Operation {
	o := stream.Operation{Op: op, Output: out, NumInputs: 1, Group: group}
	o.Inputs[0] = in
	return o
}

func binary(op ubercore.OpCode, a, b, out alloc.AllocationID, group ubercore.Group) stream.Operation {
	o := stream.Operation{Op: op, Output: out, NumInputs: 2, Group: group}
	o.Inputs[0], o.Inputs[1] = a, b
	return o
}

// TestCompileFusesWholeChain: a straight-line unary chain with no
// external reads of its intermediates collapses into one Instruction.
func TestCompileFusesWholeChain(t *testing.T) {
	table := newTable()
	t0 := table.Allocate(dtype.Float32, mustShape(t, 4))
	t1 := table.Allocate(dtype.Float32, mustShape(t, 4))
	t2 := table.Allocate(dtype.Float32, mustShape(t, 4))
	t3 := table.Allocate(dtype.Float32, mustShape(t, 4))

	// Simulate the ARC-style drop of each intermediate's sole extra
	// handle once the next op retains it, leaving every intermediate at
	// refcount 1 by the time the queue is compiled - mirroring what
	// Appender.Append + the frontend's automatic release would produce.
	mustRetain(t, table, t1)
	mustRelease(t, table, t1)
	mustRetain(t, table, t2)
	mustRelease(t, table, t2)
	// t3 is the chain's final output: never consumed further, and the
	// frontend keeps its one handle untouched (refcount stays 1 from
	// Allocate, never checked since there is no next op to gate).

	ops := []stream.Operation{
		unary(ubercore.OpIncrement, t0, t1, ubercore.Group32),
		unary(ubercore.OpNegate, t1, t2, ubercore.Group32),
		unary(ubercore.OpAbs, t2, t3, ubercore.Group32),
	}

	prog := Compile(ops, table)
	if len(prog) != 1 {
		t.Fatalf("instruction count = %d, want 1", len(prog))
	}
	inst := prog[0]
	if inst.Output != t3 {
		t.Fatalf("output = %d, want %d", inst.Output, t3)
	}
	if len(inst.Inputs) != 1 || inst.Inputs[0] != t0 {
		t.Fatalf("inputs = %v, want [%d]", inst.Inputs, t0)
	}
	want := []ubercore.OpCode{ubercore.OpIncrement, ubercore.OpNegate, ubercore.OpAbs}
	if !opsEqual(inst.OpCodes, want) {
		t.Fatalf("opcodes = %v, want %v", inst.OpCodes, want)
	}
}

// TestCompileBreaksOnSharedIntermediate mirrors a divergent chain where
// the middle result is read independently of the op that consumes it:
// t.incr().incr() produces 'a', which both the frontend still holds (an
// external read) and a later negate consumes. The chain must materialize
// at 'a' rather than fuse the negate into the same Instruction.
func TestCompileBreaksOnSharedIntermediate(t *testing.T) {
	table := newTable()
	t0 := table.Allocate(dtype.Float32, mustShape(t, 4))
	x := table.Allocate(dtype.Float32, mustShape(t, 4))
	a := table.Allocate(dtype.Float32, mustShape(t, 4))
	b := table.Allocate(dtype.Float32, mustShape(t, 4))

	mustRetain(t, table, x)
	mustRelease(t, table, x) // x has exactly one consumer: the second increment
	mustRetain(t, table, a)  // a's retain from the negate op
	// a's own handle stays held (refcount 2: negate's retain + the
	// frontend's own handle) - this is what forces materialization.

	ops := []stream.Operation{
		unary(ubercore.OpIncrement, t0, x, ubercore.Group32),
		unary(ubercore.OpIncrement, x, a, ubercore.Group32),
		unary(ubercore.OpNegate, a, b, ubercore.Group32),
	}

	prog := Compile(ops, table)
	if len(prog) != 2 {
		t.Fatalf("instruction count = %d, want 2", len(prog))
	}
	if prog[0].Output != a {
		t.Fatalf("first instruction output = %d, want %d (materialized)", prog[0].Output, a)
	}
	if len(prog[0].OpCodes) != 2 {
		t.Fatalf("first instruction opcodes = %v, want 2 fused increments", prog[0].OpCodes)
	}
	if prog[1].Output != b || len(prog[1].OpCodes) != 1 {
		t.Fatalf("second instruction = %+v, want a single negate producing %d", prog[1], b)
	}
	if prog[1].Inputs[0] != a {
		t.Fatalf("second instruction reads %d fresh from device, want %d", prog[1].Inputs[0], a)
	}
}

// TestCompileBreaksOnDTypeGroupChange verifies a 32-bit to 64-bit group
// boundary always ends the current Instruction, even though the output
// feeding across the boundary is otherwise a perfectly fusable chain.
func TestCompileBreaksOnDTypeGroupChange(t *testing.T) {
	table := newTable()
	t0 := table.Allocate(dtype.Float32, mustShape(t, 4))
	t1 := table.Allocate(dtype.Float32, mustShape(t, 4))
	t2 := table.Allocate(dtype.Int64, mustShape(t, 4))

	mustRetain(t, table, t1)
	mustRelease(t, table, t1)

	ops := []stream.Operation{
		unary(ubercore.OpSquare, t0, t1, ubercore.Group32),
		unary(ubercore.OpCastWiden, t1, t2, ubercore.Group64),
	}

	prog := Compile(ops, table)
	if len(prog) != 2 {
		t.Fatalf("instruction count = %d, want 2 (dtype group break)", len(prog))
	}
	if prog[0].Group != ubercore.Group32 || prog[1].Group != ubercore.Group64 {
		t.Fatalf("groups = %v, %v; want Group32, Group64", prog[0].Group, prog[1].Group)
	}
}

// TestCompileInsertsSwapForDistinctSecondaryOperands builds a chain with
// two binary ops whose secondary operands are two different allocations:
// (t0 + p) * q. applyBinary always reads its secondary operand from
// register 1, so bringing q into position after p already occupies it
// requires an inserted swap.
func TestCompileInsertsSwapForDistinctSecondaryOperands(t *testing.T) {
	table := newTable()
	t0 := table.Allocate(dtype.Float32, mustShape(t, 4))
	p := table.Allocate(dtype.Float32, mustShape(t, 4))
	q := table.Allocate(dtype.Float32, mustShape(t, 4))
	sum := table.Allocate(dtype.Float32, mustShape(t, 4))
	prod := table.Allocate(dtype.Float32, mustShape(t, 4))

	mustRetain(t, table, p)
	mustRetain(t, table, q)
	mustRetain(t, table, sum)
	mustRelease(t, table, sum)

	ops := []stream.Operation{
		binary(ubercore.OpAdd, t0, p, sum, ubercore.Group32),
		binary(ubercore.OpMul, sum, q, prod, ubercore.Group32),
	}

	prog := Compile(ops, table)
	if len(prog) != 1 {
		t.Fatalf("instruction count = %d, want 1", len(prog))
	}
	inst := prog[0]
	if len(inst.Inputs) != 3 {
		t.Fatalf("inputs = %v, want 3 distinct registers (t0, p, q)", inst.Inputs)
	}
	if inst.Inputs[0] != t0 || inst.Inputs[1] != p || inst.Inputs[2] != q {
		t.Fatalf("register assignment = %v, want [%d %d %d]", inst.Inputs, t0, p, q)
	}

	// p occupies register 1 (first secondary operand, no swap needed for
	// the add); q lands in register 2 on first use, so the mul must be
	// preceded by a swap bringing q into register 1.
	if len(inst.OpCodes) != 3 {
		t.Fatalf("opcodes = %v, want [add, swap(1,2), mul]", inst.OpCodes)
	}
	if inst.OpCodes[0] != ubercore.OpAdd {
		t.Fatalf("opcodes[0] = %v, want OpAdd", inst.OpCodes[0])
	}
	if i, j, ok := ubercore.IsSwap(inst.OpCodes[1]); !ok || i != 1 || j != 2 {
		t.Fatalf("opcodes[1] = %v, want SwapOp(1,2)", inst.OpCodes[1])
	}
	if inst.OpCodes[2] != ubercore.OpMul {
		t.Fatalf("opcodes[2] = %v, want OpMul", inst.OpCodes[2])
	}
}

// TestCompileReusesRegisterForRepeatedSecondaryOperand checks that a
// secondary operand referenced by two ops in the same chain is loaded
// into a register once, not twice, and needs no swap the second time it
// is already sitting where required.
func TestCompileReusesRegisterForRepeatedSecondaryOperand(t *testing.T) {
	table := newTable()
	t0 := table.Allocate(dtype.Float32, mustShape(t, 4))
	p := table.Allocate(dtype.Float32, mustShape(t, 4))
	mid := table.Allocate(dtype.Float32, mustShape(t, 4))
	out := table.Allocate(dtype.Float32, mustShape(t, 4))

	mustRetain(t, table, p)
	mustRetain(t, table, p) // p is read by both binary ops
	mustRetain(t, table, mid)
	mustRelease(t, table, mid)

	ops := []stream.Operation{
		binary(ubercore.OpAdd, t0, p, mid, ubercore.Group32),
		binary(ubercore.OpSub, mid, p, out, ubercore.Group32),
	}

	prog := Compile(ops, table)
	if len(prog) != 1 {
		t.Fatalf("instruction count = %d, want 1", len(prog))
	}
	inst := prog[0]
	if len(inst.Inputs) != 2 {
		t.Fatalf("inputs = %v, want 2 (t0, p loaded once)", inst.Inputs)
	}
	if len(inst.OpCodes) != 2 {
		t.Fatalf("opcodes = %v, want [add, sub] with no swap", inst.OpCodes)
	}
}

func mustRetain(t *testing.T, table *alloc.Table, id alloc.AllocationID) {
	t.Helper()
	if err := table.Retain(id); err != nil {
		t.Fatalf("Retain(%d): %v", id, err)
	}
}

func mustRelease(t *testing.T, table *alloc.Table, id alloc.AllocationID) {
	t.Helper()
	if _, err := table.Release(id); err != nil {
		t.Fatalf("Release(%d): %v", id, err)
	}
}

func opsEqual(a, b []ubercore.OpCode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
