// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import "github.com/gogpu/tensorjit/hal"

// API implements hal.Backend for the noop backend.
type API struct{}

// Variant returns the backend type identifier.
func (API) Variant() hal.Variant { return hal.VariantNoop }

// CreateInstance creates a new noop instance. Always succeeds.
func (API) CreateInstance(_ *hal.InstanceDescriptor) (hal.Instance, error) {
	return &Instance{}, nil
}

// Instance implements hal.Instance for the noop backend.
type Instance struct{}

// EnumerateAdapters returns a single default noop adapter.
func (i *Instance) EnumerateAdapters() []hal.ExposedAdapter {
	return []hal.ExposedAdapter{
		{
			Adapter: &Adapter{},
			Name:    "Noop Adapter",
			Capabilities: hal.Capabilities{
				MaxBufferLength:              1 << 30,
				RecommendedMaxWorkingSetSize: 1 << 32,
				BufferAlignment:              16,
			},
		},
	}
}

// Destroy is a no-op for the noop instance.
func (i *Instance) Destroy() {}

// Adapter implements hal.Adapter for the noop backend.
type Adapter struct{}

// Open opens a noop device. Always succeeds.
func (a *Adapter) Open(_ hal.Limits) (hal.OpenDevice, error) {
	return hal.OpenDevice{Device: &Device{}, Queue: &Queue{}}, nil
}

// Destroy is a no-op.
func (a *Adapter) Destroy() {}
