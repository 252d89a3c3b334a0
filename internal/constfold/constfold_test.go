// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package constfold

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/tensorjit/internal/ubercore"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		elementCount int64
		want         bool
	}{
		{0, false},
		{1, true},
		{2, false},
		{MaxFoldableElements, true},
		{MaxFoldableElements + 1, false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := Eligible(tt.elementCount); got != tt.want {
			t.Errorf("Eligible(%d) = %v, want %v", tt.elementCount, got, tt.want)
		}
	}
}

func TestFoldMatchesDirectUbercoreRun(t *testing.T) {
	var input [4]byte
	binary.LittleEndian.PutUint32(input[:], math.Float32bits(3.0))

	opcodes := []ubercore.OpCode{ubercore.OpSquare, ubercore.OpIncrement}
	params := ubercore.DispatchParams{
		ElementCount: 1,
		Group:        ubercore.Group32,
		WriteKind:    ubercore.KindFloat,
		NumInputs:    1,
		NumOps:       uint16(len(opcodes)),
		Reads:        [4]ubercore.ReadParams{{ElementWidth: 4, Kind: ubercore.KindFloat}},
		Write:        ubercore.ReadParams{ElementWidth: 4, Kind: ubercore.KindFloat},
	}

	folded := make([]byte, 4)
	Fold(params, opcodes, nil, [4][]byte{input[:]}, folded)

	dispatched := make([]byte, 4)
	ubercore.Run(params, opcodes, nil, [4][]byte{input[:]}, dispatched)

	got := math.Float32frombits(binary.LittleEndian.Uint32(folded))
	if got != 10.0 {
		t.Fatalf("folded result = %v, want 10.0 (square(3)+1)", got)
	}
	if string(folded) != string(dispatched) {
		t.Fatal("Fold and ubercore.Run disagree on identical input")
	}
}
