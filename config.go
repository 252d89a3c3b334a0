// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tensorjit

import (
	"log/slog"

	"github.com/gogpu/tensorjit/hal"
	"github.com/gogpu/tensorjit/internal/stream"
)

// StorageMode names a host-access policy, answering the "Open question -
// storage mode" design note: a discrete GPU backend would stage through a
// private upload/readback buffer rather than map device memory directly.
// The Device records the mode but ReadTensor and InitializeTensor do not
// consult it: both use an allocation's buffer directly when it
// implements hal.HostAccessible and return ErrHostAccessUnsupported
// otherwise. hal/cpu buffers already are host memory.
type StorageMode uint8

const (
	// StorageModeShared assumes every buffer implements
	// hal.HostAccessible and reads/writes it directly - correct for
	// hal/cpu and hal/noop, and for any backend whose memory is
	// genuinely host-shared.
	StorageModeShared StorageMode = iota

	// StorageModePrivate names buffers that are not host-visible. No
	// staging copy exists: a buffer that does not implement
	// hal.HostAccessible surfaces ErrHostAccessUnsupported from
	// ReadTensor/InitializeTensor in either mode.
	StorageModePrivate
)

// DeviceDescriptor configures a Device, grounded on the teacher's
// gputypes.DeviceDescriptor / DefaultDeviceDescriptor() pattern: a plain
// struct plus a package-level sane-default constructor, rather than
// functional options.
type DeviceDescriptor struct {
	// Label is an optional debug name, surfaced in log lines.
	Label string

	// Backend selects a specific hal.Variant. Ignored unless
	// AutoSelectBackend is false.
	Backend hal.Variant

	// AutoSelectBackend uses hal.SelectBestBackend (cpu over noop)
	// instead of Backend. Defaults to true in DefaultDeviceDescriptor.
	AutoSelectBackend bool

	// StorageMode is recorded on the Device; read_tensor and
	// initialize_tensor do not consult it (see StorageMode).
	StorageMode StorageMode

	// MaxWorkingSetSize bounds the Heap Allocator; 0 uses the adapter's
	// reported hal.Capabilities.RecommendedMaxWorkingSetSize.
	MaxWorkingSetSize uint64

	// MaxCommandsPerBatch overrides the Command Stream's queue-length
	// flush trigger; 0 uses stream.MaxCommandsPerBatch (128).
	MaxCommandsPerBatch int

	// Logger receives diagnostic output regardless of the debug env
	// vars (§6); if nil, a silent logger is used unless an env var
	// requests one.
	Logger *slog.Logger
}

// DefaultDeviceDescriptor returns the descriptor NewDevice(nil) uses:
// auto-selected backend, shared storage mode, the adapter's recommended
// working set, and the spec's default batch size.
func DefaultDeviceDescriptor() DeviceDescriptor {
	return DeviceDescriptor{
		AutoSelectBackend:   true,
		StorageMode:         StorageModeShared,
		MaxCommandsPerBatch: stream.MaxCommandsPerBatch,
	}
}
