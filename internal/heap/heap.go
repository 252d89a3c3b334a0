// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package heap implements the Heap Allocator: a size-bucketed cache of
// backend buffers sitting between the Allocation Table and hal.Device.
//
// Unlike hal/vulkan/memory's BuddyAllocator, which carves offsets out of
// one contiguous arena, the Heap Allocator never subdivides a single
// buffer: every HeapBufferBlock is its own independent hal.Buffer, and
// "allocation" means either reusing a same-bucket buffer a prior
// deallocation left cached, or asking the backend for a brand new one.
// Bucketing still follows the buddy allocator's power-of-2 rounding,
// which is what makes a freed 300-byte buffer reusable by the next
// 260-byte request.
package heap

import (
	"container/heap"
	"errors"
	"log/slog"
	"math/bits"
	"sync"

	"github.com/gogpu/tensorjit/hal"
)

// ErrOutOfMemory is returned when a request would exceed the working set
// ceiling and permitExceedingSystemRAM has not been set, or when the
// backend itself fails to produce a buffer even after the cache has been
// drained once.
var ErrOutOfMemory = errors.New("heap: out of memory")

// minBucketSize is the smallest size class; requests smaller than this
// still consume a minBucketSize buffer, bounding the number of distinct
// bucket sizes the cache has to track.
const minBucketSize = 256

// freeBlock is one cached buffer sitting in a bucket's ordered free set.
// All blocks in a given bucket share the same (rounded) size, so seq -
// the order Free assigned it - is what the set is actually sorted by;
// spec §4.5's "sorted by size, then by insertion order" collapses to
// exactly insertion order once size is held fixed per bucket.
type freeBlock struct {
	buf hal.Buffer
	seq uint64
}

// blockSet is a container/heap.Interface min-heap over freeBlock.seq,
// giving each bucket's free list the O(log n) ordered-set behavior spec
// §4.5/§8 property 7 names: remove_at(0) always returns the
// oldest-freed (here, since size is constant per bucket: simply the
// earliest) block.
type blockSet []freeBlock

func (s blockSet) Len() int            { return len(s) }
func (s blockSet) Less(i, j int) bool  { return s[i].seq < s[j].seq }
func (s blockSet) Swap(i, j int)       { s[i], s[j] = s[j], s[i] }
func (s *blockSet) Push(x interface{}) { *s = append(*s, x.(freeBlock)) }
func (s *blockSet) Pop() interface{} {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

// Heap caches backend buffers by size bucket so that repeated
// allocate/free cycles of similarly-sized tensors - the common case in
// an eager execution loop - do not round-trip through hal.Device on
// every call.
type Heap struct {
	mu     sync.Mutex
	device hal.Device

	// free holds, per bucket size, the ordered set of buffers currently
	// not in use.
	free map[int64]*blockSet

	// nextSeq assigns each freed block its insertion order; a single
	// monotonic counter shared across all buckets is simpler than one
	// per bucket and costs nothing since it only orders ties within a
	// bucket.
	nextSeq uint64

	// liveBytes is the sum of bucket sizes for buffers currently handed
	// out (not sitting in free).
	liveBytes int64

	// cachedBytes is the sum of bucket sizes for buffers sitting in free.
	cachedBytes int64

	// maxWorkingSetSize is the recommended ceiling on liveBytes+cachedBytes,
	// typically populated from the adapter's Capabilities or a real
	// system RAM query (see sysinfo_linux.go).
	maxWorkingSetSize uint64

	// permitExceedingSystemRAM is a one-shot escape hatch: once set, the
	// working-set ceiling is no longer enforced until the next
	// releaseCachedBufferBlocksLocked call clears it again (spec §4.5).
	permitExceedingSystemRAM bool

	// flushInFlight, if set, blocks until every batch submitted so far
	// has completed, returning their buffers to this Heap's cache. Wired
	// by Device (see SetInFlightFlusher) since the Heap Allocator itself
	// has no notion of batches - only of buffers.
	flushInFlight func()

	logger *slog.Logger
}

// New creates a Heap bounded by maxWorkingSetSize bytes. Pass 0 to use
// RecommendedWorkingSetSize (a real host RAM query on platforms
// golang.org/x/sys/unix.Sysinfo supports, see sysinfo_linux.go).
func New(device hal.Device, maxWorkingSetSize uint64, logger *slog.Logger) *Heap {
	if maxWorkingSetSize == 0 {
		maxWorkingSetSize = RecommendedWorkingSetSize()
	}
	return &Heap{
		device:            device,
		free:              make(map[int64]*blockSet),
		maxWorkingSetSize: maxWorkingSetSize,
		logger:            logger,
	}
}

// PermitExceedingSystemRAM disables the working-set ceiling until the
// next ReleaseCachedBufferBlocks call (or the OOM retry sequence's own
// cache release) clears the flag again. Intended for callers that know
// their workload's peak footprint exceeds the host's detected RAM (e.g.
// a benchmark harness running against a deliberately tiny ceiling).
func (h *Heap) PermitExceedingSystemRAM() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.permitExceedingSystemRAM = true
}

// SetInFlightFlusher wires the callback Malloc's OOM retry sequence uses
// to wait for in-flight batches to complete before draining the cache.
// Device calls this once, after its own Completion Tracker exists, since
// the two are constructed in the other order (Heap is built before the
// Encoder and Tracker that would otherwise need to be wired in at New).
func (h *Heap) SetInFlightFlusher(flush func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushInFlight = flush
}

func bucketFor(size int64) int64 {
	if size <= minBucketSize {
		return minBucketSize
	}
	return int64(1) << bits.Len64(uint64(size-1))
}

// Malloc returns a buffer of at least size bytes, reusing the
// oldest-freed cached buffer from size's bucket when one is available.
func (h *Heap) Malloc(size int64) (hal.Buffer, error) {
	if size < 0 {
		return nil, errors.New("heap: negative size")
	}
	bucket := bucketFor(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	if set := h.free[bucket]; set != nil && set.Len() > 0 {
		item := heap.Pop(set).(freeBlock)
		h.cachedBytes -= bucket
		h.liveBytes += bucket
		return item.buf, nil
	}

	if !h.permitExceedingSystemRAM && uint64(h.liveBytes+h.cachedBytes+bucket) > h.maxWorkingSetSize {
		return nil, ErrOutOfMemory
	}

	buf, err := h.device.CreateBuffer(&hal.BufferDescriptor{Size: uint64(bucket)})
	if err != nil {
		buf, err = h.recoverFromAllocationFailureLocked(bucket)
		if err != nil {
			return nil, ErrOutOfMemory
		}
	}

	h.liveBytes += bucket
	if h.logger != nil {
		h.logger.Debug("heap buffer materialized", "bucket", bucket, "live_bytes", h.liveBytes)
	}
	return buf, nil
}

// recoverFromAllocationFailureLocked runs spec §4.5's OOM retry
// sequence after a backend CreateBuffer call has failed: set the
// one-shot permit_exceeding_system_ram flag, wait for every in-flight
// batch to complete (so onBatchComplete can return their buffers to
// this cache), drain that cache back to the backend, and retry
// CreateBuffer exactly once. The caller treats a second failure as
// fatal.
func (h *Heap) recoverFromAllocationFailureLocked(bucket int64) (hal.Buffer, error) {
	h.permitExceedingSystemRAM = true

	if flush := h.flushInFlight; flush != nil {
		// flush (ultimately Device.waitForInFlightBatches) blocks on a
		// condition variable that onBatchComplete signals after taking
		// this Heap's lock to call Free - h.mu must be released first
		// or that call deadlocks against us.
		h.mu.Unlock()
		flush()
		h.mu.Lock()
	}

	h.releaseCachedBufferBlocksLocked()

	if h.logger != nil {
		h.logger.Warn("heap: backend allocation failed, retrying after draining cache", "bucket", bucket)
	}
	return h.device.CreateBuffer(&hal.BufferDescriptor{Size: uint64(bucket)})
}

// Free returns a buffer previously obtained from Malloc(size) to the
// cache for reuse by a future request in the same bucket. The backend
// buffer is not destroyed.
func (h *Heap) Free(buf hal.Buffer, size int64) {
	bucket := bucketFor(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.liveBytes -= bucket
	h.cachedBytes += bucket

	set := h.free[bucket]
	if set == nil {
		set = &blockSet{}
		h.free[bucket] = set
	}
	h.nextSeq++
	heap.Push(set, freeBlock{buf: buf, seq: h.nextSeq})
}

// ReleaseCachedBufferBlocks destroys every buffer currently sitting in
// the free cache, returning their memory to the backend. Live
// (currently-malloc'd) buffers are untouched. This is also the spec
// §4.5-mandated way to clear permitExceedingSystemRAM: the one-shot
// ceiling override persists across allocations only until the next call
// here.
func (h *Heap) ReleaseCachedBufferBlocks() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseCachedBufferBlocksLocked()
}

func (h *Heap) releaseCachedBufferBlocksLocked() {
	for bucket, set := range h.free {
		for _, item := range *set {
			h.device.DestroyBuffer(item.buf)
		}
		delete(h.free, bucket)
	}
	if h.logger != nil {
		h.logger.Debug("heap cache drained", "reclaimed_bytes", h.cachedBytes)
	}
	h.cachedBytes = 0
	h.permitExceedingSystemRAM = false
}

// LiveBytes and CachedBytes report the current accounting totals; used
// by tests and by diagnostics logging.
func (h *Heap) LiveBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.liveBytes
}

func (h *Heap) CachedBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cachedBytes
}
