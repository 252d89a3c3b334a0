// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package fusion implements the Fusion Compiler: it converts a pruned,
// ordered Operation queue into a minimal list of Instructions, each
// describing one ubershader dispatch (or, for ExplicitCopy, a plain
// buffer copy that bypasses the ubershader entirely).
//
// Grounded on core/command.go's CommandBufferMutable "what's currently
// open" bookkeeping style, generalized from tracking in-progress render
// passes to tracking an in-progress fusion chain, and on
// core/track/allocator.go's dense index-assignment style for handing out
// the ubershader's four virtual-register slots.
package fusion

import (
	"github.com/gogpu/tensorjit/dtype"
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/stream"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

// InstructionKind distinguishes the two Instruction variants the data
// model names: a fused elementwise dispatch, and a plain device-to-device
// copy that never touches the ubershader interpreter.
type InstructionKind int

const (
	Elementwise InstructionKind = iota
	ExplicitCopy
)

// Instruction is one unit of encoded work: either a fused op-code chain
// with its register assignment (Elementwise), or a source/destination
// pair for a direct buffer copy (ExplicitCopy).
type Instruction struct {
	Kind InstructionKind

	// Elementwise fields.
	Output       alloc.AllocationID
	Inputs       []alloc.AllocationID // register i loaded from Inputs[i]; len 1-4
	OpCodes      []ubercore.OpCode
	Metadata     []ubercore.Metadata // parallel to the NeedsMetadata op-codes, FIFO
	Group        ubercore.Group
	WriteKind    ubercore.Kind
	ElementCount int64

	// ExplicitCopy fields.
	CopySrc alloc.AllocationID
	CopyDst alloc.AllocationID
}

// NewExplicitCopy builds the copy variant of Instruction (the
// ExplicitCopy flush trigger of spec §4.2 step 5). Nothing in the root
// Device constructs one; Barrier only flushes and waits.
func NewExplicitCopy(src, dst alloc.AllocationID) *Instruction {
	return &Instruction{Kind: ExplicitCopy, CopySrc: src, CopyDst: dst}
}

// building accumulates one in-progress fusion chain: the register
// assigned to each distinct secondary input allocation, the op-codes and
// metadata emitted so far (including any inserted register-swap
// pseudo-ops), and the allocation currently occupying the "running
// accumulator" - register 1 in spec terms, register index 0 here.
type building struct {
	output       alloc.AllocationID
	opcodes      []ubercore.OpCode
	metadata     []ubercore.Metadata
	inputs       []alloc.AllocationID // inputs[0] is the chain's original primary source
	regOf        map[alloc.AllocationID]int
	nextReg      int
	group        ubercore.Group
	elementCount int64
	writeDType   dtype.DType
}

// Compile walks a pruned Operation queue in FIFO order and emits the
// minimal ordered list of Elementwise Instructions (spec §4.3). It never
// fails: the compiler is deterministic and always produces at least one
// Instruction per non-empty input, per §4.3 "Failure: none".
func Compile(ops []stream.Operation, table *alloc.Table) []*Instruction {
	var result []*Instruction
	var cur *building

	for _, op := range ops {
		if cur != nil && joins(cur, op, table) {
			cur.append(op, table)
			continue
		}
		if cur != nil {
			result = append(result, cur.finish())
		}
		cur = start(op, table)
	}
	if cur != nil {
		result = append(result, cur.finish())
	}
	return result
}

// joins reports whether op can extend cur in place, per the
// conditions of spec §4.3 step 2: op's primary operand must be cur's
// current running output, that output must not be independently needed
// elsewhere (refcount 1 - otherwise it must be materialized and the
// chain broken here), op's dtype group must match, and fusing must not
// need a fifth distinct input register.
func joins(cur *building, op stream.Operation, table *alloc.Table) bool {
	if op.NumInputs == 0 || op.Inputs[0] != cur.output {
		return false
	}
	if op.Group != cur.group {
		return false
	}
	curOut, err := table.Fetch(cur.output)
	if err != nil || curOut.RefCount != 1 {
		return false
	}
	newRegs := 0
	seen := make(map[alloc.AllocationID]bool)
	for slot := 1; slot < op.NumInputs; slot++ {
		id := op.Inputs[slot]
		if _, tracked := cur.regOf[id]; !tracked && !seen[id] {
			seen[id] = true
			newRegs++
		}
	}
	return len(cur.inputs)+newRegs <= 4
}

// start opens a fresh fusion chain with op as its first member.
func start(op stream.Operation, table *alloc.Table) *building {
	b := &building{
		group:   op.Group,
		regOf:   make(map[alloc.AllocationID]int),
		nextReg: 1,
	}
	if op.NumInputs > 0 {
		b.inputs = append(b.inputs, op.Inputs[0])
	}
	b.append(op, table)
	return b
}

// append folds op into the chain: assigning (and, if needed,
// register-swapping) any secondary operands into the slots applyBinary
// and applyTernary read from, then recording op's own op-code and
// metadata. op.Output becomes the chain's new running output.
func (b *building) append(op stream.Operation, table *alloc.Table) {
	for slot := 1; slot < op.NumInputs; slot++ {
		id := op.Inputs[slot]
		reg := b.registerFor(id)
		if reg != slot {
			b.opcodes = append(b.opcodes, ubercore.SwapOp(slot, reg))
			b.swapTracking(slot, reg)
		}
	}
	if op.HasMetadata {
		b.metadata = append(b.metadata, op.Metadata)
	}
	b.opcodes = append(b.opcodes, op.Op)
	b.output = op.Output

	if a, err := table.Fetch(op.Output); err == nil {
		b.writeDType = a.DType
		b.elementCount = a.Shape.ElementCount()
	}
}

// registerFor returns the register currently holding id's value, loading
// it into a fresh register (assigned in first-use order, starting at
// register index 1) the first time id appears as a secondary operand in
// this chain.
func (b *building) registerFor(id alloc.AllocationID) int {
	if r, ok := b.regOf[id]; ok {
		return r
	}
	r := b.nextReg
	b.nextReg++
	b.regOf[id] = r
	b.inputs = append(b.inputs, id)
	return r
}

// swapTracking updates which allocation each tracked register logically
// holds after a SwapOp(i, j) is emitted.
func (b *building) swapTracking(i, j int) {
	var atI, atJ alloc.AllocationID
	foundI, foundJ := false, false
	for id, r := range b.regOf {
		switch r {
		case i:
			atI, foundI = id, true
		case j:
			atJ, foundJ = id, true
		}
	}
	if foundI {
		b.regOf[atI] = j
	}
	if foundJ {
		b.regOf[atJ] = i
	}
}

func (b *building) finish() *Instruction {
	return &Instruction{
		Kind:         Elementwise,
		Output:       b.output,
		Inputs:       append([]alloc.AllocationID(nil), b.inputs...),
		OpCodes:      b.opcodes,
		Metadata:     b.metadata,
		Group:        b.group,
		WriteKind:    b.writeDType.Kind(),
		ElementCount: b.elementCount,
	}
}
