// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/hal/noop"
	"github.com/gogpu/tensorjit/internal/alloc"
)

func TestSubmitAssignsIncreasingBatchIDs(t *testing.T) {
	tr := New()
	defer tr.Close()

	device, queue := openNoop(t)
	fence, err := device.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	cmdBuf := &noop.Resource{}

	var wg sync.WaitGroup
	wg.Add(2)
	b1 := tr.Submit(queue, cmdBuf, fence, device, func(alloc.BatchID) { wg.Done() })
	b2 := tr.Submit(queue, cmdBuf, fence, device, func(alloc.BatchID) { wg.Done() })

	if b2 != b1+1 {
		t.Fatalf("second batch id = %d, want %d", b2, b1+1)
	}

	waitTimeout(t, &wg, time.Second)
}

func TestSubmitInvokesCompletionCallback(t *testing.T) {
	tr := New()
	defer tr.Close()

	device, queue := openNoop(t)
	fence, err := device.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	cmdBuf := &noop.Resource{}

	done := make(chan alloc.BatchID, 1)
	batch := tr.Submit(queue, cmdBuf, fence, device, func(b alloc.BatchID) { done <- b })

	select {
	case got := <-done:
		if got != batch {
			t.Fatalf("callback batch = %d, want %d", got, batch)
		}
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}

	if tr.Pending(batch) {
		t.Fatal("batch still reported pending after completion callback fired")
	}
}

func openNoop(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters()
	open, err := adapters[0].Adapter.Open(hal.Limits{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return open.Device, open.Queue
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for callbacks")
	}
}
