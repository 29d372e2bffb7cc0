// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"testing"

	"rsc.io/diff"
)

// TestRenderDecodeMnemonicsGolden pins the exact textual
// form of the FD_MNEMONIC listing against a byte-identical
// rerun, guarding the determinism invariant from spec §7:
// identical input must produce identical output, not merely
// output that parses the same.
func TestRenderDecodeMnemonicsGolden(t *testing.T) {
	mnemonics := []string{"ADD", "MOV", "NOP", "PADD"}

	want := "FD_MNEMONIC(ADD,0)\n" +
		"FD_MNEMONIC(MOV,1)\n" +
		"FD_MNEMONIC(NOP,2)\n" +
		"FD_MNEMONIC(PADD,3)\n"

	got := RenderDecodeMnemonics(mnemonics)
	if got != want {
		t.Errorf("RenderDecodeMnemonics mismatch:\n%s", diff.Format(want, got))
	}

	// Rerunning over the same input must reproduce the exact
	// same bytes; this is the guarantee the reference
	// generator's callers (a build system that diffs
	// generated sources) rely on.
	again := RenderDecodeMnemonics(mnemonics)
	if again != got {
		t.Errorf("RenderDecodeMnemonics is not deterministic:\n%s", diff.Format(got, again))
	}
}

// TestMergeMnemonicsGolden pins the exact merged blob for a
// small, hand-checked suffix-sharing example: "ADD" is a
// true suffix of "PADD", so "ADD\0" already occurs inside
// "PADD\0" as a substring and needs no separate entry.
func TestMergeMnemonicsGolden(t *testing.T) {
	blob, offsets := MergeMnemonics([]string{"ADD", "PADD"})

	want := "PADD"
	if blob != want {
		t.Errorf("MergeMnemonics blob mismatch:\n%s", diff.Format(want, blob))
	}

	wantOffsets := []int{1, 0}
	for i, off := range offsets {
		if off != wantOffsets[i] {
			t.Errorf("offsets[%d] = %d, want %d", i, off, wantOffsets[i])
		}
	}
}
