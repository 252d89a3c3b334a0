// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package stream

import (
	"errors"

	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

// ErrUnknownOp is returned when an operation name does not resolve to a
// known OpCode (spec §7, "UnknownOp"). Per the propagation policy, a
// failed execute_operation call must leave the allocation table
// unchanged and must not modify the command stream - Resolve returns
// this error, and the root Device calls Resolve before retaining any
// input or touching the queue.
var ErrUnknownOp = errors.New("stream: unknown operation name")

// errTooManyInputs is a program-bug panic guard: the ubershader contract
// caps distinct inputs at 4 (§4.4), a limit the Fusion Compiler and
// Encoder both assume.
var errTooManyInputs = errors.New("stream: operation has more than 4 inputs")

// Appender is the Operation Appender: the single entry point an
// execute_operation call funnels through. It implements steps 1, 2, and
// 4 of the spec §4.2 contract - name resolution, input retain, and
// enqueue. Output allocation (step 2's second half) and constant
// folding (step 3) are the root Device's responsibility, since both
// need host-visible byte access this package deliberately has no
// dependency on (it only ever touches the Allocation Table and its own
// queue).
type Appender struct {
	table  *alloc.Table
	stream *Stream
}

// NewAppender builds an Appender over an existing Allocation Table and
// Command Stream.
func NewAppender(table *alloc.Table, stream *Stream) *Appender {
	return &Appender{table: table, stream: stream}
}

// Resolve maps a frontend operation name to an OpCode, the first step
// of execute_operation (§4.2 step 1).
func Resolve(name string) (ubercore.OpCode, error) {
	op, ok := ubercore.OpTable[name]
	if !ok {
		return 0, ErrUnknownOp
	}
	return op, nil
}

// Append retains every input, enqueues the operation, and reports
// whether the queue-length flush trigger now applies. output must
// already have been allocated by the caller (with its dtype group
// matching group, per §3's Operation invariant); metadata is nil for
// op-codes that carry none.
//
// On a retain failure partway through inputs (an input ID that is
// NeverAllocated or Deallocated), every retain already issued for this
// call is rolled back before the error is returned, leaving the
// Allocation Table exactly as it was - the "failed operation leaves the
// allocation table unchanged" guarantee (§7).
func (a *Appender) Append(op ubercore.OpCode, inputs []alloc.AllocationID, output alloc.AllocationID, metadata *ubercore.Metadata, group ubercore.Group) (shouldFlush bool, err error) {
	if len(inputs) > 4 {
		panic(errTooManyInputs)
	}

	for i, id := range inputs {
		if err := a.table.Retain(id); err != nil {
			for _, done := range inputs[:i] {
				_, _ = a.table.Release(done)
			}
			return false, err
		}
	}

	operation := Operation{
		Op:        op,
		Output:    output,
		NumInputs: len(inputs),
		Group:     group,
	}
	copy(operation.Inputs[:], inputs)
	if metadata != nil {
		operation.HasMetadata = true
		operation.Metadata = *metadata
	}

	return a.stream.Push(operation), nil
}

// Stream returns the underlying Command Stream, for the root Device to
// drive flush triggers and drain into the Fusion Compiler.
func (a *Appender) Stream() *Stream { return a.stream }
