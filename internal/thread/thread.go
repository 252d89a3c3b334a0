// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package thread provides a dedicated-goroutine worker that serializes
// calls onto a single OS thread.
//
// The Completion Tracker (internal/tracker) uses one of these to submit
// batches and wait on their fences off the caller's goroutine, so a
// ExecuteOperation/Barrier caller is never blocked inside a driver call
// for longer than it takes to enqueue one. This is the same
// one-goroutine-per-queue serialization the teacher's rendering HAL used
// to keep GPU calls off the window thread; a tensor JIT has no window
// thread, but the same problem - a backend call that must not be issued
// concurrently with another - still applies to queue submission.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread represents a dedicated OS thread that executes submitted funcs
// one at a time, in submission order.
type Thread struct {
	funcs   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New creates a new thread and starts it.
// The thread is locked to an OS thread (runtime.LockOSThread).
func New() *Thread {
	t := &Thread{
		funcs: make(chan func(), 16), // Buffered for async calls
		done:  make(chan struct{}),
	}
	t.running.Store(true)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		wg.Done() // Signal that thread is ready

		for {
			select {
			case f := <-t.funcs:
				f()
			case <-t.done:
				return
			}
		}
	}()

	wg.Wait() // Wait for thread to be ready
	return t
}

// callSync executes f on the thread and waits for completion. Used as
// CallAsync's deadlock-avoidance fallback when the queue is full.
func (t *Thread) callSync(f func()) {
	if !t.running.Load() {
		return
	}

	done := make(chan struct{})
	t.funcs <- func() {
		f()
		close(done)
	}
	<-done
}

// CallAsync executes f on the thread without waiting.
// Use for fire-and-forget operations, such as submitting a batch.
func (t *Thread) CallAsync(f func()) {
	if !t.running.Load() {
		return
	}

	select {
	case t.funcs <- f:
	default:
		// Channel full - execute synchronously to avoid deadlock.
		t.callSync(f)
	}
}

// Stop stops the thread. No further calls may be submitted.
func (t *Thread) Stop() {
	if t.running.Swap(false) {
		close(t.done)
	}
}
