// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cpu

import "github.com/gogpu/tensorjit/hal"

// API implements hal.Backend for the CPU backend.
type API struct{}

// Variant returns the backend type identifier.
func (API) Variant() hal.Variant { return hal.VariantCPU }

// CreateInstance creates a new CPU instance. Always succeeds.
func (API) CreateInstance(_ *hal.InstanceDescriptor) (hal.Instance, error) {
	return &Instance{}, nil
}

// Instance implements hal.Instance for the CPU backend.
type Instance struct{}

// EnumerateAdapters returns a single adapter representing the host.
func (i *Instance) EnumerateAdapters() []hal.ExposedAdapter {
	return []hal.ExposedAdapter{
		{
			Adapter: &Adapter{},
			Name:    "Host CPU",
			Capabilities: hal.Capabilities{
				MaxBufferLength:              1 << 34,
				RecommendedMaxWorkingSetSize: 1 << 36,
				BufferAlignment:              16,
			},
		},
	}
}

// Destroy is a no-op for the CPU instance.
func (i *Instance) Destroy() {}

// Adapter implements hal.Adapter for the CPU backend.
type Adapter struct{}

// Open opens a CPU device. Always succeeds.
func (a *Adapter) Open(_ hal.Limits) (hal.OpenDevice, error) {
	return hal.OpenDevice{Device: &Device{}, Queue: &Queue{}}, nil
}

// Destroy is a no-op.
func (a *Adapter) Destroy() {}
