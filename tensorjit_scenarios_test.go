// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package tensorjit

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/tensorjit/dtype"
	"github.com/gogpu/tensorjit/internal/ubercore"
)

// newScenarioDevice opens a Device against the auto-selected backend
// (hal/cpu, since hal.SelectBestBackend prefers it over hal/noop) with
// profiling logging enabled, mirroring how a caller would set
// TENSORFLOW_DEBUG_PLUGGABLE_DEVICE_PROFILING_ENCODING to observe the
// per-flush commands_before/commands_after pair. t.Setenv restores the
// prior environment automatically; the returned buffer accumulates every
// log line for the life of the test.
func newScenarioDevice(t *testing.T) (*Device, *bytes.Buffer) {
	t.Helper()
	t.Setenv("TENSORFLOW_DEBUG_PLUGGABLE_DEVICE_PROFILING_ENCODING", "1")

	var buf bytes.Buffer
	desc := DefaultDeviceDescriptor()
	desc.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dev, err := NewDevice(&desc)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(func() {
		if err := dev.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return dev, &buf
}

func shape(t *testing.T, dims ...int64) dtype.Shape {
	t.Helper()
	s, err := dtype.NewShape(dims...)
	if err != nil {
		t.Fatalf("NewShape(%v): %v", dims, err)
	}
	return s
}

func exec(t *testing.T, dev *Device, name string, inputs []*Tensor, outDType dtype.DType, outShape dtype.Shape, meta *ubercore.Metadata) *Tensor {
	t.Helper()
	out, err := dev.ExecuteOperation(name, inputs, outDType, outShape, meta)
	if err != nil {
		t.Fatalf("ExecuteOperation(%q): %v", name, err)
	}
	return out
}

func newF32Tensor(t *testing.T, dev *Device, vals ...float32) *Tensor {
	t.Helper()
	tn, err := dev.AllocateTensor(dtype.Float32, int64(len(vals)))
	if err != nil {
		t.Fatalf("AllocateTensor: %v", err)
	}
	if err := tn.Initialize(func(data []byte) {
		for i, v := range vals {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tn
}

func readF32(t *testing.T, tn *Tensor) []float32 {
	t.Helper()
	out := make([]float32, tn.Shape().ElementCount())
	if err := tn.Read(false, func(data []byte) {
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	}); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return out
}

func newInt8Scalar(t *testing.T, dev *Device, v int8) *Tensor {
	t.Helper()
	tn, err := dev.AllocateTensor(dtype.Int8, 1)
	if err != nil {
		t.Fatalf("AllocateTensor: %v", err)
	}
	if err := tn.Initialize(func(data []byte) { data[0] = byte(v) }); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tn
}

func readInt8Scalar(t *testing.T, tn *Tensor) int8 {
	t.Helper()
	var v int8
	if err := tn.Read(false, func(data []byte) { v = int8(data[0]) }); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return v
}

func newUInt8Scalar(t *testing.T, dev *Device, v uint8) *Tensor {
	t.Helper()
	tn, err := dev.AllocateTensor(dtype.UInt8, 1)
	if err != nil {
		t.Fatalf("AllocateTensor: %v", err)
	}
	if err := tn.Initialize(func(data []byte) { data[0] = v }); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tn
}

func readUInt8Scalar(t *testing.T, tn *Tensor) uint8 {
	t.Helper()
	var v uint8
	if err := tn.Read(false, func(data []byte) { v = data[0] }); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return v
}

func newInt32Scalar(t *testing.T, dev *Device, v int32) *Tensor {
	t.Helper()
	tn, err := dev.AllocateTensor(dtype.Int32, 1)
	if err != nil {
		t.Fatalf("AllocateTensor: %v", err)
	}
	if err := tn.Initialize(func(data []byte) {
		binary.LittleEndian.PutUint32(data, uint32(v))
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tn
}

// TestScenarioS1_FusionOfSevenIncrements is the source's "seven
// increments" scenario: every increment consumes the prior one's sole
// handle, so the Fusion Compiler collapses all of them into a single
// Instruction and exactly one batch reaches the backend.
func TestScenarioS1_FusionOfSevenIncrements(t *testing.T) {
	dev, buf := newScenarioDevice(t)

	cur := newF32Tensor(t, dev, 101, 101)
	for i := 0; i < 7; i++ {
		next := exec(t, dev, "increment", []*Tensor{cur}, dtype.Float32, shape(t, 2), nil)
		if err := cur.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		cur = next
	}

	got := readF32(t, cur)
	if got[0] != 108 || got[1] != 108 {
		t.Fatalf("result = %v, want [108 108]", got)
	}
	if err := cur.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	log := buf.String()
	if n := strings.Count(log, "msg=flush"); n != 1 {
		t.Fatalf("flush count = %d, want 1 (all seven increments land in one batch)\nlog:\n%s", n, log)
	}
	if !strings.Contains(log, "commands_before=7") {
		t.Fatalf("log missing commands_before=7:\n%s", log)
	}
	if !strings.Contains(log, "commands_after=1") {
		t.Fatalf("log missing commands_after=1 (seven increments fuse into one Instruction):\n%s", log)
	}
}

// TestScenarioS2_DivergentFusion is the source's divergent fusion
// scenario: a second consumer of an intermediate forces that
// intermediate to be read by more than one downstream operation, which
// must split the queue into two Instructions rather than one.
func TestScenarioS2_DivergentFusion(t *testing.T) {
	dev, buf := newScenarioDevice(t)

	tt := newF32Tensor(t, dev, 11, 11)
	a1 := exec(t, dev, "increment", []*Tensor{tt}, dtype.Float32, shape(t, 2), nil)
	if err := tt.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	a := exec(t, dev, "increment", []*Tensor{a1}, dtype.Float32, shape(t, 2), nil)
	if err := a1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	b := exec(t, dev, "negate", []*Tensor{a}, dtype.Float32, shape(t, 2), nil)

	gotA := readF32(t, a)
	if gotA[0] != 13 || gotA[1] != 13 {
		t.Fatalf("a = %v, want [13 13]", gotA)
	}
	gotB := readF32(t, b)
	// b = -a = -13, not the -12 a naive reading of the source text might
	// suggest: a is 11 incremented twice, so -a is -13.
	if gotB[0] != -13 || gotB[1] != -13 {
		t.Fatalf("b = %v, want [-13 -13]", gotB)
	}

	log := buf.String()
	if n := strings.Count(log, "msg=flush"); n != 1 {
		t.Fatalf("flush count = %d, want 1\nlog:\n%s", n, log)
	}
	if !strings.Contains(log, "commands_before=3") {
		t.Fatalf("log missing commands_before=3:\n%s", log)
	}
	if !strings.Contains(log, "commands_after=2") {
		t.Fatalf("log missing commands_after=2 (the two increments fuse, the negation starts a second Instruction):\n%s", log)
	}

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := b.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

// TestScenarioS3_ZombieElimination is the source's zombie-pruning
// scenario: a chain whose final result is dropped before ever being
// read or retained must never reach the backend at all.
func TestScenarioS3_ZombieElimination(t *testing.T) {
	dev, buf := newScenarioDevice(t)

	tt := newF32Tensor(t, dev, 8, 8)

	cur := tt
	for i := 0; i < 4; i++ {
		next := exec(t, dev, "increment", []*Tensor{cur}, dtype.Float32, shape(t, 2), nil)
		if cur != tt {
			if err := cur.Release(); err != nil {
				t.Fatalf("Release: %v", err)
			}
		}
		cur = next
	}
	// The fourth increment's result is immediately dropped without ever
	// being read or retained by anything else.
	if err := cur.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if err := dev.Barrier(); err != nil {
		t.Fatalf("Barrier: %v", err)
	}

	got := readF32(t, tt)
	if got[0] != 8 || got[1] != 8 {
		t.Fatalf("t = %v, want [8 8]", got)
	}
	if err := tt.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if n := strings.Count(buf.String(), "msg=flush"); n != 0 {
		t.Fatalf("flush count = %d, want 0 (the whole orphaned chain is pruned before dispatch)\nlog:\n%s", n, buf.String())
	}
}

// TestScenarioS4_IntegerWrap is the source's integer-wrap scenario: all
// three cases are single-element tensors, so they take the Constant
// Folder's host path rather than ever touching the Command Stream, but
// must still reproduce the backend's two's-complement register
// semantics exactly.
func TestScenarioS4_IntegerWrap(t *testing.T) {
	dev, _ := newScenarioDevice(t)

	a := newInt8Scalar(t, dev, 127)
	incA := exec(t, dev, "increment", []*Tensor{a}, dtype.Int8, shape(t, 1), nil)
	if got := readInt8Scalar(t, incA); got != -128 {
		t.Fatalf("Int8(127).incremented() = %d, want -128", got)
	}
	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := incA.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	b := newInt8Scalar(t, dev, -128)
	absB := exec(t, dev, "abs", []*Tensor{b}, dtype.Int8, shape(t, 1), nil)
	if got := readInt8Scalar(t, absB); got != -128 {
		t.Fatalf("Int8(-128).abs() = %d, want -128", got)
	}
	if err := b.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := absB.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	c := newUInt8Scalar(t, dev, 255)
	incC := exec(t, dev, "increment", []*Tensor{c}, dtype.UInt8, shape(t, 1), nil)
	if got := readUInt8Scalar(t, incC); got != 0 {
		t.Fatalf("UInt8(255).incremented() = %d, want 0", got)
	}
	if err := c.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := incC.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

// TestScenarioS5_CastChainBreaksGroup is the source's cast-chain
// scenario: squaring, a clamped float-to-int cast into a 64-bit
// intermediate, a widen back to float, and a sqrt. The Int64 detour
// forces the chain through the 64-bit ubershader variant and back,
// which the Fusion Compiler cannot fold into the surrounding 32-bit
// Instructions.
func TestScenarioS5_CastChainBreaksGroup(t *testing.T) {
	dev, buf := newScenarioDevice(t)

	tt := newF32Tensor(t, dev, 5.005, 5.005)

	sq := exec(t, dev, "square", []*Tensor{tt}, dtype.Float32, shape(t, 2), nil)
	if err := tt.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	clamp := ubercore.ClampBounds(math.MinInt32, math.MaxInt32)
	asInt := exec(t, dev, "cast_f32_to_i32", []*Tensor{sq}, dtype.Int64, shape(t, 2), &clamp)
	if err := sq.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	asFloat := exec(t, dev, "cast_int_to_float", []*Tensor{asInt}, dtype.Float32, shape(t, 2), nil)
	if err := asInt.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	result := exec(t, dev, "sqrt", []*Tensor{asFloat}, dtype.Float32, shape(t, 2), nil)
	if err := asFloat.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got := readF32(t, result)
	if got[0] != 5 || got[1] != 5 {
		t.Fatalf("result = %v, want [5 5]", got)
	}
	if err := result.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	log := buf.String()
	if !strings.Contains(log, "commands_after=3") {
		t.Fatalf("log missing commands_after=3 (square; the cross-group cast; sqrt):\n%s", log)
	}
}

// TestScenarioS6_ConstantFoldingShortCircuit is the source's
// constant-folding scenario: a length-1 Int32 value run through
// increment, a cast to float, and a square, every step small enough to
// fold on the host, so no batch is ever submitted between its creation
// and its read.
func TestScenarioS6_ConstantFoldingShortCircuit(t *testing.T) {
	dev, buf := newScenarioDevice(t)

	a := newInt32Scalar(t, dev, 3)
	inc := exec(t, dev, "increment", []*Tensor{a}, dtype.Int32, shape(t, 1), nil)
	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	asFloat := exec(t, dev, "cast_int_to_float", []*Tensor{inc}, dtype.Float32, shape(t, 1), nil)
	if err := inc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	sq := exec(t, dev, "square", []*Tensor{asFloat}, dtype.Float32, shape(t, 1), nil)
	if err := asFloat.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got := readF32(t, sq)
	if got[0] != 16 {
		t.Fatalf("result = %v, want [16]", got)
	}
	if err := sq.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if n := strings.Count(buf.String(), "msg=flush"); n != 0 {
		t.Fatalf("flush count = %d, want 0 (increment, cast, and square all fold on the host)\nlog:\n%s", n, buf.String())
	}
}

// TestInvariantFusionLawMatchesOneByOneSubmission exercises §8's fusion
// law: the same chain of operations must read back bitwise identical
// whether the Fusion Compiler gets to see it as one burst (S1's style)
// or the caller forces a flush and dispatch after every single op via
// Barrier.
func TestInvariantFusionLawMatchesOneByOneSubmission(t *testing.T) {
	dev, _ := newScenarioDevice(t)

	fused := newF32Tensor(t, dev, 101, 101)
	for i := 0; i < 7; i++ {
		next := exec(t, dev, "increment", []*Tensor{fused}, dtype.Float32, shape(t, 2), nil)
		if err := fused.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		fused = next
	}
	fusedResult := readF32(t, fused)
	if err := fused.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	oneByOne := newF32Tensor(t, dev, 101, 101)
	for i := 0; i < 7; i++ {
		next := exec(t, dev, "increment", []*Tensor{oneByOne}, dtype.Float32, shape(t, 2), nil)
		if err := oneByOne.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		oneByOne = next
		if err := dev.Barrier(); err != nil {
			t.Fatalf("Barrier: %v", err)
		}
	}
	oneByOneResult := readF32(t, oneByOne)
	if err := oneByOne.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if fusedResult[0] != oneByOneResult[0] || fusedResult[1] != oneByOneResult[1] {
		t.Fatalf("fused = %v, one-by-one = %v, want bitwise identical", fusedResult, oneByOneResult)
	}
}

// TestInvariantReleaseBalanceTracksAllocationLifecycle exercises §8
// invariant 1's two failure kinds: releasing a handle a second time
// must report Deallocated, distinguishing it from an id that was never
// issued in the first place.
func TestInvariantReleaseBalanceTracksAllocationLifecycle(t *testing.T) {
	dev, _ := newScenarioDevice(t)

	tn := newF32Tensor(t, dev, 1)
	if err := tn.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}

	err := tn.Release()
	if err == nil {
		t.Fatal("second Release succeeded, want a Deallocated error")
	}
	if !IsDeallocated(err) {
		t.Fatalf("second Release err = %v, want Deallocated", err)
	}
	if IsNeverAllocated(err) {
		t.Fatalf("second Release err = %v, misclassified as NeverAllocated", err)
	}
}
