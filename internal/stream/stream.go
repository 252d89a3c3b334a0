// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package stream implements the Operation Appender and Command Stream:
// the single entry point through which the frontend enqueues one
// elementwise operation at a time, and the bounded pending-operation
// queue the Fusion Compiler later drains.
//
// Grounded on core/command.go's CommandEncoderStatus state machine
// (Recording -> Locked -> Finished -> Consumed): the Stream here carries
// an analogous, much smaller state machine (statusIdle -> statusFlushing
// -> statusIdle) recording whether a Drain is in progress. Nothing reads
// the status; callers serialize Drain through the root Device's lock.
package stream

import (
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

// MaxCommandsPerBatch is the default queue-length flush trigger (spec
// §4.2 step 5, "Queue length reaches MAX_COMMANDS_PER_BATCH (128)").
const MaxCommandsPerBatch = 128

// Operation is one pending elementwise op, not yet grouped into an
// Instruction by the Fusion Compiler.
type Operation struct {
	Op OpCode

	// Inputs holds up to 4 distinct input AllocationIDs; NumInputs says
	// how many of the 4 slots are live.
	Inputs    [4]alloc.AllocationID
	NumInputs int

	Output alloc.AllocationID

	// HasMetadata reports whether Metadata carries the op's inline 8-byte
	// blob (bounds, masks, compare code); unused for ops that need none.
	HasMetadata bool
	Metadata    ubercore.Metadata

	// Group is the dtype group (32-bit or 64-bit ubershader variant)
	// this operation's inputs and output share.
	Group ubercore.Group
}

// OpCode is a re-export of ubercore.OpCode so callers outside this
// package's import graph don't need to reach into internal/ubercore
// merely to build an Operation.
type OpCode = ubercore.OpCode

type status int32

const (
	statusIdle status = iota
	statusFlushing
)

// Stream is the bounded, ordered buffer of pending operations. It is not
// safe for concurrent use on its own; callers serialize access through
// the same lock the root Device holds over the Allocation Table (see
// SPEC_FULL.md §5).
type Stream struct {
	maxLen  int
	pending []Operation
	status  status
}

// New creates an empty Stream with the given flush threshold. A
// maxLen <= 0 uses MaxCommandsPerBatch.
func New(maxLen int) *Stream {
	if maxLen <= 0 {
		maxLen = MaxCommandsPerBatch
	}
	return &Stream{maxLen: maxLen}
}

// Len reports the number of pending operations.
func (s *Stream) Len() int { return len(s.pending) }

// Operations returns the pending queue in FIFO order, for inspection by
// tests and the profiling env var's "#Commands: X" line. The returned
// slice is not a copy; callers must not mutate it.
func (s *Stream) Operations() []Operation { return s.pending }

// Push appends op to the queue and reports whether the queue-length
// flush trigger (spec §4.2 step 5, first bullet) now applies.
func (s *Stream) Push(op Operation) (shouldFlush bool) {
	s.pending = append(s.pending, op)
	return len(s.pending) >= s.maxLen
}

// Drain empties the queue, first pruning zombie operations (spec §4.2
// "Zombie pruning"), and returns the surviving operations in FIFO order
// for the Fusion Compiler. Draining an empty queue is a no-op returning
// nil, matching the "flush must be idempotent for an empty queue"
// requirement.
//
// protected lists AllocationIDs that must never be pruned regardless of
// refcount, even when they satisfy the textual refcount==1 test: the
// root Device passes every allocation with a live frontend handle, plus
// the allocation a host read_tensor call is flushing for. Without this, a final result a tensor handle
// still holds (refcount 1, nothing left to consume it, about to be
// read) would be indistinguishable from a true zombie (refcount 1
// because its sole consumer was itself just pruned) by refcount alone.
func (s *Stream) Drain(table *alloc.Table, protected ...alloc.AllocationID) []Operation {
	if len(s.pending) == 0 {
		return nil
	}
	s.status = statusFlushing
	defer func() { s.status = statusIdle }()

	keep := s.pruneZombies(table, protected)

	surviving := make([]Operation, 0, len(keep))
	for i, op := range s.pending {
		if keep[i] {
			surviving = append(surviving, op)
		}
	}
	s.pending = nil
	return surviving
}

// pruneZombies scans the queue backward, dropping any operation whose
// output is unreachable: either its refcount has already decayed to
// zero (the frontend's automatic reference counting dropped the sole
// handle to it and nothing ever consumed it, per the design note's
// "refcount of 0 on an unwritten allocation" signal), or it sits at
// exactly 1 - the steady state for a node whose only reason to exist
// was a consumer that this same backward pass has itself just pruned -
// with no surviving operation left reading it.
//
// Because the scan visits consumers before their producers, a pruned
// operation's retains on its own inputs are released immediately, so
// the dead state cascades backward through an entire orphaned chain in
// one pass: S8 invariant 5 (zero dispatches for an unread chain) falls
// out of this directly rather than needing a fixed-point loop.
func (s *Stream) pruneZombies(table *alloc.Table, protected []alloc.AllocationID) []bool {
	isProtected := make(map[alloc.AllocationID]bool, len(protected))
	for _, id := range protected {
		isProtected[id] = true
	}

	referencedAfter := make(map[alloc.AllocationID]bool)
	keep := make([]bool, len(s.pending))
	for i := len(s.pending) - 1; i >= 0; i-- {
		op := s.pending[i]
		a, err := table.Fetch(op.Output)
		if err != nil {
			// The output was already removed from the table - reachable
			// when a caller drops the last handle to a pending, never-
			// materialized result before this op's own flush ever runs
			// (release_tensor reclaims such an allocation immediately,
			// since no batch completion will ever arrive for it). Treat
			// exactly like any other dead op: release its inputs so the
			// orphaned release cascades backward through the chain.
			keep[i] = false
			for j := 0; j < op.NumInputs; j++ {
				_, _ = table.Release(op.Inputs[j])
			}
			continue
		}

		dead := !isProtected[op.Output] &&
			(a.RefCount == 0 || (a.RefCount == 1 && !referencedAfter[op.Output]))
		if !dead {
			keep[i] = true
			for j := 0; j < op.NumInputs; j++ {
				referencedAfter[op.Inputs[j]] = true
			}
			continue
		}

		keep[i] = false
		if a.RefCount > 0 {
			_, _ = table.Release(op.Output)
		}
		table.Remove(op.Output)
		for j := 0; j < op.NumInputs; j++ {
			_, _ = table.Release(op.Inputs[j])
		}
	}
	return keep
}
