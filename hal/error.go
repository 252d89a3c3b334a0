package hal

import "errors"

// Common HAL errors representing unrecoverable device states.
var (
	// ErrBackendNotFound indicates the requested backend is not registered.
	ErrBackendNotFound = errors.New("hal: backend not found")

	// ErrDeviceOutOfMemory indicates the device has exhausted its memory.
	// The Heap Allocator handles this locally (flush, evict, retry once)
	// before it ever reaches a caller - see internal/heap.
	ErrDeviceOutOfMemory = errors.New("hal: device out of memory")

	// ErrDeviceLost indicates the device has been lost and cannot be
	// recovered; this is process-fatal per the concurrency model.
	ErrDeviceLost = errors.New("hal: device lost")

	// ErrTimeout indicates a Wait operation timed out.
	ErrTimeout = errors.New("hal: timeout")

	// ErrHostAccessUnsupported indicates a buffer's backend does not
	// implement HostAccessible - a host read or write was attempted
	// against a buffer that only a real device, not the host, can see.
	ErrHostAccessUnsupported = errors.New("hal: buffer does not support direct host access")
)
