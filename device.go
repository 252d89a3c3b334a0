// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tensorjit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/gogpu/tensorjit/dtype"
	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/constfold"
	"github.com/gogpu/tensorjit/internal/encode"
	"github.com/gogpu/tensorjit/internal/fusion"
	"github.com/gogpu/tensorjit/internal/heap"
	"github.com/gogpu/tensorjit/internal/stream"
	"github.com/gogpu/tensorjit/internal/tracker"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

// maxConstantFoldableBytes bounds an input's byte size for constant
// folding eligibility (spec §4.2 step 3, "all inputs are <= 4096 B").
const maxConstantFoldableBytes = 4096

// Device is the external interface named in §6: a single process-wide
// runtime bundling the Allocation Table, Command Stream, Fusion
// Compiler, Encoder, Heap Allocator, Constant Folder, and Completion
// Tracker behind one lock (§5, §9 "Global mutable state"). Every method
// below serializes through mu; nothing here may be called concurrently
// from two goroutines except insofar as the lock already arbitrates it.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	halInstance hal.Instance
	halDevice   hal.Device
	halQueue    hal.Queue

	table    *alloc.Table
	streamQ  *stream.Stream
	appender *stream.Appender
	heap     *heap.Heap
	tracker  *tracker.Tracker
	encoder  *encode.Encoder

	// live is the set of AllocationIDs with an outstanding frontend
	// *Tensor handle that has not yet been passed to ReleaseTensor. A
	// handle a caller still holds but has not yet read sits at refcount
	// 1 from its own allocation alone - the same number a true zombie
	// reaches once its sole consumer is pruned - so refcount can't tell
	// the two apart (internal/stream.Drain's protected parameter exists
	// for exactly this). flushLocked always protects every id in live,
	// regardless of which allocation (if any) it is flushing to read,
	// so a second live result isn't pruned out from under its handle
	// just because some other read or a barrier happened to trigger the
	// flush first.
	live map[alloc.AllocationID]struct{}

	logger           *slog.Logger
	debugRefcounting bool
	debugProfiling   bool
	storageMode      StorageMode

	closed bool
}

// NewDevice builds a Device from desc. A nil desc uses
// DefaultDeviceDescriptor. NewDevice resolves a hal.Backend, opens its
// sole adapter, and wires the Heap Allocator, Completion Tracker, and
// Encoder over it - the one-time setup §9's "single Device object
// created once per process" describes (tests are free to create more
// than one, each with its own descriptor).
func NewDevice(desc *DeviceDescriptor) (*Device, error) {
	d := DefaultDeviceDescriptor()
	if desc != nil {
		d = *desc
	}

	debugRefcounting := os.Getenv("TENSORFLOW_DEBUG_PLUGGABLE_DEVICE_REFERENCE_COUNTING") != ""
	debugProfiling := os.Getenv("TENSORFLOW_DEBUG_PLUGGABLE_DEVICE_PROFILING_ENCODING") != ""

	logger := d.Logger
	if logger == nil {
		if debugRefcounting || debugProfiling {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	}
	hal.SetLogger(logger)

	var backend hal.Backend
	var err error
	if d.AutoSelectBackend {
		backend, err = hal.SelectBestBackend()
	} else {
		backend, err = hal.CreateBackend(d.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("tensorjit: selecting backend: %w", err)
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Variant: backend.Variant()})
	if err != nil {
		return nil, fmt.Errorf("tensorjit: creating instance: %w", err)
	}

	adapters := instance.EnumerateAdapters()
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("tensorjit: backend %s exposed no adapters", backend.Variant())
	}
	adapter := adapters[0]

	open, err := adapter.Adapter.Open(hal.Limits{MaxBufferLength: adapter.Capabilities.MaxBufferLength})
	if err != nil {
		adapter.Adapter.Destroy()
		instance.Destroy()
		return nil, fmt.Errorf("tensorjit: opening adapter %s: %w", adapter.Name, err)
	}

	maxWorkingSet := d.MaxWorkingSetSize
	if maxWorkingSet == 0 {
		maxWorkingSet = adapter.Capabilities.RecommendedMaxWorkingSetSize
	}

	var tableLogger *slog.Logger
	if debugRefcounting {
		tableLogger = logger
	}
	table := alloc.NewTable(tableLogger)

	h := heap.New(open.Device, maxWorkingSet, logger)
	tr := tracker.New()

	enc, err := encode.New(open.Device, open.Queue, table, h, tr)
	if err != nil {
		return nil, fmt.Errorf("tensorjit: building encoder: %w", err)
	}

	streamQ := stream.New(d.MaxCommandsPerBatch)
	appender := stream.NewAppender(table, streamQ)

	dev := &Device{
		halInstance:      instance,
		halDevice:        open.Device,
		halQueue:         open.Queue,
		table:            table,
		streamQ:          streamQ,
		appender:         appender,
		heap:             h,
		tracker:          tr,
		encoder:          enc,
		logger:           logger,
		debugRefcounting: debugRefcounting,
		debugProfiling:   debugProfiling,
		storageMode:      d.StorageMode,
		live:             make(map[alloc.AllocationID]struct{}),
	}
	dev.cond = sync.NewCond(&dev.mu)
	h.SetInFlightFlusher(dev.waitForInFlightBatches)

	logger.Info("device opened", "backend", backend.Variant().String(), "adapter", adapter.Name)
	return dev, nil
}

// AllocateTensor reserves a new handle for a tensor of the given dtype
// and dims, the realization of allocate_tensor. It panics if len(dims)
// exceeds dtype.MaxRank, matching the handle API's documented failure
// mode (§6: "none; panics on rank > 5") - the one place this package
// departs from returning an error, because the spec draws this
// particular boundary as a programmer error, not a runtime condition a
// caller is expected to recover from.
func (d *Device) AllocateTensor(dt dtype.DType, dims ...int64) (*Tensor, error) {
	shape, err := dtype.NewShape(dims...)
	if err != nil {
		panic(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	id := d.table.Allocate(dt, shape)
	d.live[id] = struct{}{}
	return &Tensor{device: d, id: id, dtype: dt, shape: shape}, nil
}

// InitializeTensor writes host data into t via write, the realization of
// initialize_tensor. write receives a byte span of exactly t's byte
// size; it must fill it completely before returning.
func (d *Device) InitializeTensor(t *Tensor, write func(data []byte)) error {
	if err := d.checkOwnership(t); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}

	a, err := d.table.Fetch(t.id)
	if err != nil {
		return err
	}
	if a.Initialized {
		return ErrAlreadyInitialized
	}

	buf, err := d.hostBufferLocked(t.id)
	if err != nil {
		return err
	}
	data := make([]byte, a.ByteSize)
	write(data)
	buf.WriteData(0, data)

	return d.table.MarkInitialized(t.id)
}

// ReadTensor observes t's current value via read, the realization of
// read_tensor. mutating mirrors the source's mutating_bool: when true,
// any change read makes to the byte span is written back. ReadTensor is
// one of the two suspension points (§5 "Suspension points"): it flushes
// the queue if t is a pending output, then blocks until the batch that
// last wrote t has completed.
func (d *Device) ReadTensor(t *Tensor, mutating bool, read func(data []byte)) error {
	if err := d.checkOwnership(t); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}

	if _, err := d.flushLocked(t.id); err != nil {
		return err
	}

	for {
		a, err := d.table.Fetch(t.id)
		if err != nil {
			return err
		}
		if !d.tracker.Pending(a.LastModifiedBatch) {
			break
		}
		d.cond.Wait()
	}

	a, err := d.table.Fetch(t.id)
	if err != nil {
		return err
	}
	if !a.Initialized {
		return ErrNotInitialized
	}

	buf, err := d.hostBufferLocked(t.id)
	if err != nil {
		return err
	}
	data := buf.GetData()
	read(data)
	if mutating {
		buf.WriteData(0, data)
	}
	return nil
}

// CopyTensorShape writes t's dimensions into dims, the realization of
// copy_tensor_shape. dims must have length >= t.Rank().
func (d *Device) CopyTensorShape(t *Tensor, dims []int64) error {
	if err := d.checkOwnership(t); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}

	if _, err := d.table.Fetch(t.id); err != nil {
		return err
	}
	copy(dims, t.shape.Dims[:t.shape.Rank])
	return nil
}

// ReleaseTensor drops t's counted reference, the realization of
// release_tensor. If the refcount reaches zero, the allocation becomes a
// zombie candidate: its table entry (and, once safe, its backing
// buffer) is reclaimed - immediately if it was never materialized,
// otherwise once no in-flight batch can still be reading it (§9
// "Refcount-driven zombie pruning").
func (d *Device) ReleaseTensor(t *Tensor) error {
	if err := d.checkOwnership(t); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}

	dropped, err := d.table.Release(t.id)
	if err != nil {
		return err
	}
	delete(d.live, t.id)
	if dropped {
		d.finalizeIfDead(t.id)
	}
	return nil
}

// ExecuteOperation resolves name to an op-code, retains inputs, allocates
// an output of outDType/outShape, and either constant-folds the result
// immediately or enqueues it onto the Command Stream - the realization
// of execute_operation (§4.2). Attribute parsing into metadata and
// output-dtype inference (spec step 1's "parse attributes") is a
// front-end concern above this core; callers here supply the decoded
// result directly as outDType/outShape/metadata.
func (d *Device) ExecuteOperation(name string, inputs []*Tensor, outDType dtype.DType, outShape dtype.Shape, metadata *ubercore.Metadata) (*Tensor, error) {
	op, err := stream.Resolve(name)
	if err != nil {
		return nil, err
	}

	group := outDType.Group()
	crossesGroup := ubercore.Arity(op) <= 1
	for _, in := range inputs {
		if err := d.checkOwnership(in); err != nil {
			return nil, err
		}
		// A unary op's single operand is allowed to sit in the other
		// dtype group from its output - that is exactly what a cast
		// op-code is for (§4.4), and internal/ubercore's DecodeElement
		// widens or narrows the on-device width to whatever group the
		// Instruction dispatches at regardless of the source width. A
		// binary or ternary op has no such escape hatch: the ubershader
		// contract requires every operand of a multi-input op, and its
		// output, to share one dtype group (§3's Operation invariant).
		if !crossesGroup && in.dtype.Group() != group {
			return nil, ErrGroupMismatch
		}
		ec := in.shape.ElementCount()
		if ec != 1 && ec != outShape.ElementCount() {
			return nil, ErrShapeMismatch
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}

	inputIDs := make([]alloc.AllocationID, len(inputs))
	for i, in := range inputs {
		inputIDs[i] = in.id
	}

	outID := d.table.Allocate(outDType, outShape)
	d.live[outID] = struct{}{}
	outTensor := &Tensor{device: d, id: outID, dtype: outDType, shape: outShape}

	if ubercore.Arity(op) <= 2 && constfold.Eligible(outShape.ElementCount()) {
		folded, err := d.tryConstantFold(op, inputIDs, outID, metadata, ubercore.Group(group))
		if err != nil {
			d.table.Remove(outID)
			return nil, err
		}
		if folded {
			return outTensor, nil
		}
	}

	shouldFlush, err := d.appender.Append(op, inputIDs, outID, metadata, ubercore.Group(group))
	if err != nil {
		d.table.Remove(outID)
		return nil, err
	}
	if shouldFlush {
		if _, err := d.flushLocked(); err != nil {
			return nil, err
		}
	}
	return outTensor, nil
}

// tryConstantFold attempts spec §4.2 step 3: if every input is already
// initialized and small enough, op is evaluated on the host via
// internal/constfold instead of ever touching the Command Stream. It
// reports false (with no error and no side effect beyond the temporary
// retain/release pair) when an input fails eligibility, leaving
// ExecuteOperation to fall through to the normal queued path.
func (d *Device) tryConstantFold(op ubercore.OpCode, inputIDs []alloc.AllocationID, outID alloc.AllocationID, metadata *ubercore.Metadata, group ubercore.Group) (bool, error) {
	inputAllocs := make([]*alloc.Allocation, len(inputIDs))
	for i, id := range inputIDs {
		a, err := d.table.Fetch(id)
		if err != nil {
			return false, err
		}
		if !a.Initialized || a.ByteSize > maxConstantFoldableBytes {
			return false, nil
		}
		inputAllocs[i] = a
	}

	for _, id := range inputIDs {
		if err := d.table.Retain(id); err != nil {
			return false, err
		}
	}
	defer func() {
		for _, id := range inputIDs {
			if dropped, err := d.table.Release(id); err == nil && dropped {
				d.finalizeIfDead(id)
			}
		}
	}()

	outAlloc, err := d.table.Fetch(outID)
	if err != nil {
		return false, err
	}

	params := ubercore.DispatchParams{
		ElementCount: uint32(outAlloc.Shape.ElementCount()),
		Group:        group,
		WriteKind:    outAlloc.DType.Kind(),
		NumInputs:    uint8(len(inputIDs)),
		NumOps:       1,
	}
	var inputBytes [4][]byte
	for i, a := range inputAllocs {
		hb, err := d.hostBufferLocked(a.ID)
		if err != nil {
			return false, err
		}
		inputBytes[i] = hb.GetData()
		params.Reads[i] = ubercore.ReadParams{
			ElementWidth:    uint8(a.DType.Size()),
			Kind:            a.DType.Kind(),
			ScalarBroadcast: a.Shape.ElementCount() == 1 && outAlloc.Shape.ElementCount() > 1,
		}
	}
	params.Write = ubercore.ReadParams{ElementWidth: uint8(outAlloc.DType.Size()), Kind: outAlloc.DType.Kind()}

	var metaBytes []byte
	if metadata != nil {
		metaBytes = append(metaBytes, metadata[:]...)
	}

	outBytes := make([]byte, outAlloc.ByteSize)
	constfold.Fold(params, []ubercore.OpCode{op}, metaBytes, inputBytes, outBytes)

	outHB, err := d.hostBufferLocked(outID)
	if err != nil {
		return false, err
	}
	outHB.WriteData(0, outBytes)

	if err := d.table.MarkInitialized(outID); err != nil {
		return false, err
	}
	return true, nil
}

// Barrier flushes the Command Stream and blocks until every batch it
// produces (and any still in flight from an earlier flush) has
// completed - the realization of barrier(), the other suspension point.
func (d *Device) Barrier() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	return d.barrierLocked()
}

// waitForInFlightBatches blocks until every batch submitted so far has
// completed, letting onBatchComplete return their buffers to the Heap
// Allocator. It is the flush step of the Heap's OOM retry sequence
// (§4.5) and requires d.mu already held by the calling goroutine - the
// same precondition as barrierLocked, which it mirrors except that it
// waits out every outstanding batch instead of draining the Command
// Stream into one new one first.
func (d *Device) waitForInFlightBatches() {
	for d.tracker.AnyPending() {
		d.cond.Wait()
	}
}

func (d *Device) barrierLocked() error {
	batch, err := d.flushLocked()
	if err != nil {
		return err
	}
	if batch == 0 {
		d.waitForInFlightBatches()
		return nil
	}
	for d.tracker.Pending(batch) {
		d.cond.Wait()
	}
	return nil
}

// Close flushes and waits for outstanding work, then releases the
// Heap Allocator's cache and the underlying hal.Device/hal.Instance.
// Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}

	if err := d.barrierLocked(); err != nil {
		d.logger.Warn("close: flush before shutdown failed", "error", err)
	}

	d.tracker.Close()
	d.heap.ReleaseCachedBufferBlocks()
	if err := d.halDevice.WaitIdle(); err != nil {
		d.logger.Warn("close: wait idle failed", "error", err)
	}
	d.halDevice.Destroy()
	d.halInstance.Destroy()
	d.closed = true
	return nil
}

// flushLocked drains the Command Stream, compiles the surviving
// operations into Instructions, and submits them as one batch. extra
// names any additional AllocationIDs zombie pruning must never drop
// beyond the ids already in d.live (read_tensor passes its own target
// here too, though live already covers it as long as the caller hasn't
// released it). It returns BatchID 0 with a nil error when there was
// nothing to flush (§4.2 "Flush must be idempotent for an empty queue").
func (d *Device) flushLocked(extra ...alloc.AllocationID) (alloc.BatchID, error) {
	protected := make([]alloc.AllocationID, 0, len(d.live)+len(extra))
	for id := range d.live {
		protected = append(protected, id)
	}
	protected = append(protected, extra...)

	ops := d.streamQ.Drain(d.table, protected...)
	if len(ops) == 0 {
		return 0, nil
	}

	instructions := fusion.Compile(ops, d.table)

	if d.debugProfiling {
		d.logger.Info("flush", "commands_before", len(ops), "commands_after", len(instructions))
	}

	batch, err := d.encoder.Encode(instructions, d.onBatchComplete)

	// Balance the Appender's per-input retain now that the Encoder has
	// materialized each surviving Instruction's real inputs and recorded
	// them via RecordRead/LastReferencedBatch: refcount reverts to
	// reflecting only live frontend handles, with in-flight GPU reads
	// tracked separately.
	for _, op := range ops {
		for i := 0; i < op.NumInputs; i++ {
			if dropped, err := d.table.Release(op.Inputs[i]); err == nil && dropped {
				d.finalizeIfDead(op.Inputs[i])
			}
		}
	}

	if err != nil {
		return 0, err
	}
	return batch, nil
}

// onBatchComplete runs on the Completion Tracker's worker goroutine once
// a batch's fence signals. It finalizes every allocation FinalizeBatch
// reports as now safe to delete, returns their buffers to the Heap
// Allocator, and wakes any goroutine blocked in ReadTensor or Barrier.
//
// This is safe to call with d.mu unheld from the Tracker's perspective
// precisely because it takes the lock itself here: a ReadTensor call
// already holding d.mu while waiting on d.cond has released it for the
// duration of the wait, so this callback's Lock does not deadlock
// against it.
func (d *Device) onBatchComplete(batch alloc.BatchID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	freed := d.table.FinalizeBatch(batch)
	for _, fb := range freed {
		if buf, ok := fb.Buffer.(hal.Buffer); ok {
			d.heap.Free(buf, fb.Size)
		}
	}
	d.cond.Broadcast()
}

// finalizeIfDead removes id's table entry once its refcount has reached
// zero and no in-flight batch can still be reading its buffer, returning
// the buffer to the Heap Allocator first if one was ever materialized.
// An allocation that never touched the heap (a pure fusion register) is
// removed immediately, since FinalizeBatch's batch-completion signal
// never arrives for one that was never dispatched (§3 "deleted only
// when refcount = 0 AND last-referenced batch completed" - vacuously
// true when no batch ever referenced it).
func (d *Device) finalizeIfDead(id alloc.AllocationID) {
	a, err := d.table.Fetch(id)
	if err != nil || a.RefCount > 0 {
		return
	}
	if !a.Materialized {
		d.table.Remove(id)
		return
	}
	if d.tracker.Pending(a.LastReferencedBatch) {
		return
	}
	if buf, ok := a.Buffer.(hal.Buffer); ok {
		d.heap.Free(buf, a.ByteSize)
	}
	d.table.Remove(id)
}

// hostBufferLocked materializes id's backing buffer if needed and
// returns it as a hal.HostAccessible, the mechanism ReadTensor,
// InitializeTensor, and the Constant Folder all share for touching
// device memory from the host (see hal.HostAccessible and the
// StorageMode design note).
func (d *Device) hostBufferLocked(id alloc.AllocationID) (hal.HostAccessible, error) {
	if err := d.table.Materialize(id, func(size int64) (alloc.BackingBuffer, error) {
		return d.heap.Malloc(size)
	}); err != nil {
		return nil, err
	}
	a, err := d.table.Fetch(id)
	if err != nil {
		return nil, err
	}
	hb, ok := a.Buffer.(hal.HostAccessible)
	if !ok {
		return nil, ErrHostAccessUnsupported
	}
	return hb, nil
}

func (d *Device) checkOwnership(t *Tensor) error {
	if t == nil || t.device != d {
		return ErrForeignTensor
	}
	return nil
}
