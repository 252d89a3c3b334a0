// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package noop implements a plumbing-only hal.Backend: every resource is a
// placeholder, and Dispatch performs no computation. It exists to exercise
// the Encoder's state machine and command-buffer bookkeeping without
// paying for (or depending on the correctness of) real numeric execution -
// the role hal/cpu plays instead, via package ubercore.
package noop
