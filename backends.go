// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tensorjit

// Blank-importing a hal backend runs its init(), which self-registers
// with hal.RegisterBackend - the same pattern hal/cpu/init.go and
// hal/noop/init.go already use. Importing this package is enough to make
// both backends available to NewDevice without the caller needing to
// know package hal exists.
import (
	_ "github.com/gogpu/tensorjit/hal/cpu"
	_ "github.com/gogpu/tensorjit/hal/noop"
)
