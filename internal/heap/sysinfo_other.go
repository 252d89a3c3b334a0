// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

//go:build !linux

package heap

// RecommendedWorkingSetSize falls back to a conservative fixed ceiling
// on platforms without a unix.Sysinfo equivalent wired up.
func RecommendedWorkingSetSize() uint64 {
	return fallbackWorkingSetSize
}
