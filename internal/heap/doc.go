// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package heap

// fallbackWorkingSetSize is used when no platform-specific RAM query is
// available (see sysinfo_linux.go / sysinfo_other.go).
const fallbackWorkingSetSize = 4 << 30 // 4 GiB
