// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package tracker implements the Completion Tracker: it submits a
// batch's command buffer on a dedicated worker goroutine (package
// internal/thread, the same dedicated-OS-thread abstraction the
// teacher's rendering HAL used to serialize GPU calls off the window
// thread) and invokes a completion callback once the backend's fence
// signals. The callback is where the Allocation Table finalizes
// zero-refcount allocations whose LastReferencedBatch has caught up, and
// where any goroutine blocked in ReadTensor gets woken.
package tracker

import (
	"sync"
	"time"

	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/internal/alloc"
	"github.com/gogpu/tensorjit/internal/thread"
)

// Tracker assigns monotonically increasing BatchIDs and dispatches their
// submission asynchronously, invoking a completion callback per batch.
type Tracker struct {
	worker *thread.Thread

	mu        sync.Mutex
	nextBatch alloc.BatchID
	pending   map[alloc.BatchID]struct{}
}

// New creates a Completion Tracker with its own dedicated worker goroutine.
func New() *Tracker {
	return &Tracker{
		worker:  thread.New(),
		pending: make(map[alloc.BatchID]struct{}),
	}
}

// Submit assigns a fresh BatchID to cmdBuf, submits it on the worker
// goroutine, waits for fence to reach fenceValue, and then invokes
// onComplete. onComplete runs on the worker goroutine, not the caller's -
// callers that need to touch Device state from it must take the
// Device's own lock themselves.
func (t *Tracker) Submit(queue hal.Queue, cmdBuf hal.CommandBuffer, fence hal.Fence, device hal.Device, onComplete func(alloc.BatchID)) alloc.BatchID {
	t.mu.Lock()
	t.nextBatch++
	batch := t.nextBatch
	t.pending[batch] = struct{}{}
	t.mu.Unlock()

	fenceValue := uint64(batch)
	t.worker.CallAsync(func() {
		if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, fenceValue); err == nil {
			_, _ = device.Wait(fence, fenceValue, time.Hour)
		}

		t.mu.Lock()
		delete(t.pending, batch)
		t.mu.Unlock()

		if onComplete != nil {
			onComplete(batch)
		}
	})

	return batch
}

// Pending reports whether batch has not yet completed.
func (t *Tracker) Pending(batch alloc.BatchID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[batch]
	return ok
}

// AnyPending reports whether any batch submitted so far has not yet
// completed. Used by the Heap Allocator's OOM retry sequence to wait
// out every in-flight batch before draining the cache, rather than one
// specific BatchID the way Barrier does.
func (t *Tracker) AnyPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending) > 0
}

// Close stops the worker goroutine. No further batches may be submitted.
func (t *Tracker) Close() {
	t.worker.Stop()
}
