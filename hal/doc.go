// Package hal provides the Hardware Abstraction Layer for the tensor JIT's
// execution backends.
//
// The HAL defines backend-agnostic interfaces for buffer and
// ubershader-dispatch operations, letting the core run against a real
// device implementation (hal/cpu, which performs genuine host-side
// computation through package ubercore) or a plumbing-only one
// (hal/noop, used to exercise the Encoder without caring about numeric
// results).
//
// # Architecture
//
// The HAL is organized into several layers:
//
//  1. Backend - Factory for creating instances (entry point)
//  2. Instance - Entry point for adapter enumeration
//  3. Adapter - Physical device representation with capability queries
//  4. Device - Logical device for resource creation and command submission
//  5. Queue - Command buffer submission
//  6. CommandEncoder - Command recording
//
// # Design Principles
//
// The HAL prioritizes portability over safety, delegating validation to
// the higher internal/encode layer. This means:
//
//   - Most methods are unsafe in terms of state validation
//   - Validation is the caller's responsibility
//   - Only unrecoverable errors are returned (out of memory, device lost)
//
// # Resource Types
//
// All device resources (buffers, pipelines, etc.) implement the Resource
// interface which provides a Destroy method. Resources must be explicitly
// destroyed to free device memory.
//
// # Backend Registration
//
// Backends register themselves using RegisterBackend or
// RegisterBackendFactory. Callers query available backends and create
// instances dynamically:
//
//	backend, err := hal.CreateBackend(hal.VariantCPU)
//	if err != nil {
//		return fmt.Errorf("cpu backend not available: %w", err)
//	}
//	instance, err := backend.CreateInstance(desc)
//
// # Thread Safety
//
// Unless explicitly stated, HAL interfaces are not thread-safe.
// Synchronization is the caller's responsibility - tensorjit.Device holds
// a single per-device lock around all HAL calls (see §5 of the design;
// there is no hidden global serialization point here).
//
//   - Backend registration (RegisterBackend, GetBackend) is thread-safe
//
// # Error Handling
//
// The HAL uses error values for unrecoverable errors:
//
//   - ErrDeviceOutOfMemory - device memory exhausted
//   - ErrDeviceLost - device disconnected or driver reset
//
// Validation errors (invalid descriptors, incorrect usage) are the
// caller's responsibility and are not checked by the HAL.
package hal
