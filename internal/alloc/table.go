// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package alloc

import (
	"log/slog"
	"sync"

	"github.com/gogpu/tensorjit/dtype"
)

// Table is the Allocation Table: a map from AllocationID to Allocation,
// guarded by a single mutex in keeping with the single-lock concurrency
// model the Device above it uses throughout (see SPEC_FULL.md §5/§9) -
// there is deliberately no per-allocation locking of the kind
// core/storage.go's Storage[T, M] uses, since every caller already holds
// the Device's lock before touching the table.
type Table struct {
	mu          sync.Mutex
	allocations map[AllocationID]*Allocation
	nextID      AllocationID

	// logger traces retain/release refcount transitions when
	// TENSORFLOW_DEBUG_PLUGGABLE_DEVICE_REFERENCE_COUNTING is set (see
	// the root package's env var wiring); nil disables tracing entirely
	// with zero overhead on the hot path.
	logger *slog.Logger
}

// NewTable creates an empty Allocation Table. logger may be nil.
func NewTable(logger *slog.Logger) *Table {
	return &Table{
		allocations: make(map[AllocationID]*Allocation),
		logger:      logger,
	}
}

// Allocate reserves a fresh AllocationID for a tensor of the given dtype
// and shape, with an initial refcount of 1. The allocation is not
// materialized: no backing buffer exists until Materialize is called.
func (t *Table) Allocate(dt dtype.DType, shape dtype.Shape) AllocationID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	t.allocations[id] = &Allocation{
		ID:       id,
		DType:    dt,
		Shape:    shape,
		ByteSize: shape.ByteSize(dt),
		RefCount: 1,
	}

	if t.logger != nil {
		t.logger.Debug("allocation created", "id", uint64(id), "dtype", dt.String(), "bytes", shape.ByteSize(dt))
	}
	return id
}

// Fetch returns the allocation for id, or an *IDError classifying
// whether id was never issued (NeverAllocated) or was issued and fully
// released (Deallocated).
func (t *Table) Fetch(id AllocationID) (*Allocation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetchLocked(id)
}

func (t *Table) fetchLocked(id AllocationID) (*Allocation, error) {
	if a, ok := t.allocations[id]; ok {
		return a, nil
	}
	return nil, &IDError{ID: id, NextID: t.nextID, NeverAllocated: id >= t.nextID}
}

// Retain increments id's refcount. It is the caller's responsibility to
// only retain IDs it has verified are live (e.g. operation inputs
// resolved moments earlier under the same lock).
func (t *Table) Retain(id AllocationID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, err := t.fetchLocked(id)
	if err != nil {
		return err
	}
	a.RefCount++
	if t.logger != nil {
		t.logger.Debug("allocation retained", "id", uint64(id), "refcount", a.RefCount)
	}
	return nil
}

// Release decrements id's refcount and reports whether it reached zero.
// A zero-refcount allocation is a zombie candidate, not necessarily
// deletable yet: its buffer, if materialized, may still be read by a
// batch already in flight (tracked via LastReferencedBatch), so the
// Completion Tracker - not Release itself - performs the final removal.
func (t *Table) Release(id AllocationID) (droppedToZero bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, err := t.fetchLocked(id)
	if err != nil {
		return false, err
	}
	a.RefCount--
	if t.logger != nil {
		t.logger.Debug("allocation released", "id", uint64(id), "refcount", a.RefCount)
	}
	return a.RefCount <= 0, nil
}

// Remove deletes id's entry entirely. Called once an allocation has
// dropped to a zero refcount and the Completion Tracker has confirmed no
// in-flight batch still references its buffer.
func (t *Table) Remove(id AllocationID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.allocations, id)
}

// MarkInitialized records that id now holds a defined value, either from
// a host write or a completed batch.
func (t *Table) MarkInitialized(id AllocationID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, err := t.fetchLocked(id)
	if err != nil {
		return err
	}
	a.Initialized = true
	return nil
}

// Materialize attaches a backing buffer to id, obtained from alloc via
// the supplied function (typically the Heap Allocator's malloc). It is
// idempotent: if id is already materialized, alloc is not called.
func (t *Table) Materialize(id AllocationID, alloc func(size int64) (BackingBuffer, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, err := t.fetchLocked(id)
	if err != nil {
		return err
	}
	if a.Materialized {
		return nil
	}
	buf, err := alloc(a.ByteSize)
	if err != nil {
		return err
	}
	a.Buffer = buf
	a.Materialized = true
	return nil
}

// RecordWrite updates id's LastModifiedBatch, called by the Encoder once
// it has submitted a batch with id as an Instruction's output.
func (t *Table) RecordWrite(id AllocationID, batch BatchID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, err := t.fetchLocked(id)
	if err != nil {
		return err
	}
	a.LastModifiedBatch = batch
	return nil
}

// RecordRead updates id's LastReferencedBatch, called by the Encoder once
// it has submitted a batch with id as an Instruction's input.
func (t *Table) RecordRead(id AllocationID, batch BatchID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, err := t.fetchLocked(id)
	if err != nil {
		return err
	}
	a.LastReferencedBatch = batch
	return nil
}

// Len returns the number of live allocations, for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.allocations)
}

// FreedBuffer names a backing buffer FinalizeBatch has just orphaned,
// along with the byte size the Heap Allocator needs to return it to the
// correct size bucket.
type FreedBuffer struct {
	Buffer BackingBuffer
	Size   int64
}

// FinalizeBatch removes every allocation whose LastReferencedBatch
// equals batch and whose refcount has already reached zero - the
// Completion Tracker's contract step "for each Allocation whose
// last_referenced_batch_id equals this batch ID and whose refcount has
// reached zero, finalizes deletion: returns its block to the Heap
// Allocator and removes it from the Allocation Table." The caller (the
// root Device) is responsible for actually returning the freed buffers
// to the Heap Allocator; this method only knows the table, not the heap.
func (t *Table) FinalizeBatch(batch BatchID) []FreedBuffer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var freed []FreedBuffer
	for id, a := range t.allocations {
		if a.RefCount > 0 || a.LastReferencedBatch != batch {
			continue
		}
		if a.Materialized {
			freed = append(freed, FreedBuffer{Buffer: a.Buffer, Size: a.ByteSize})
		}
		delete(t.allocations, id)
	}
	return freed
}
