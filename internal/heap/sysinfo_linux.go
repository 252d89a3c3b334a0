// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

//go:build linux

package heap

import "golang.org/x/sys/unix"

// RecommendedWorkingSetSize queries the host's total RAM via
// unix.Sysinfo, mirroring the adapter capability query a real GPU HAL
// would perform (hal.Capabilities.RecommendedMaxWorkingSetSize) but
// sourced from the actual machine the CPU backend runs on rather than a
// vendor-reported number.
func RecommendedWorkingSetSize() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fallbackWorkingSetSize
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
