// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseOpcode(t *testing.T) {
	zero := 0

	tests := []struct {
		Name string
		Src  string
		Want Opcode
		Err  string
	}{
		{
			Name: "plain byte",
			Src:  "90",
			Want: Opcode{Opc: 0x90},
		},
		{
			Name: "extended opcode byte",
			Src:  "b8+",
			Want: Opcode{Opc: 0xb8, Extended: true},
		},
		{
			Name: "0f escape",
			Src:  "0f1f",
			Want: Opcode{Escape: 1, Opc: 0x1f},
		},
		{
			Name: "modrm digit with mem class",
			Src:  "f7/0m",
			Want: Opcode{Opc: 0xf7, ModReg: &ModReg{Digit: &zero, Class: ModRegMem}},
		},
		{
			Name: "wildcard /r",
			Src:  "01/r",
			Want: Opcode{Opc: 0x01, ModReg: &ModReg{Class: ModRegReg}},
		},
		{
			Name: "0f escape preferred over opcode extension byte",
			Src:  "0fc6",
			Want: Opcode{Escape: 1, Opc: 0xc6},
		},
		{
			Name: "legacy prefix with rexw and vexl",
			Src:  "66.W1.L0.0f58",
			Want: Opcode{Prefix: "66", REXW: "1", VEXL: "0", Escape: 1, Opc: 0x58},
		},
		{
			Name: "vex prefix",
			Src:  "VEX.NP.0fc2",
			Want: Opcode{Prefix: "NP", VEX: true, Escape: 1, Opc: 0xc2},
		},
		{
			Name: "malformed",
			Src:  "zz",
			Err:  "malformed opcode",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := ParseOpcode(test.Src)
			if test.Err != "" {
				if err == nil || !contains(err.Error(), test.Err) {
					t.Fatalf("ParseOpcode(%q) error = %v, want substring %q", test.Src, err, test.Err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOpcode(%q): unexpected error: %v", test.Src, err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Errorf("ParseOpcode(%q) (-want +got):\n%s", test.Src, diff)
			}
		})
	}
}

func TestOpcodeForTrie(t *testing.T) {
	tests := []struct {
		Name      string
		Src       string
		WantPaths int
	}{
		{Name: "plain byte", Src: "90", WantPaths: 1},
		{Name: "extended opcode fans out over 8 bytes", Src: "b8+", WantPaths: 8},
		{Name: "wildcard reg digit fans out over 8", Src: "01/r", WantPaths: 8},
		{Name: "fixed reg digit with mem class", Src: "f7/0m", WantPaths: 1},
		{Name: "NFx prefix fans out over both NP/66 slots", Src: "NFx.0f10", WantPaths: 2},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			opc, err := ParseOpcode(test.Src)
			if err != nil {
				t.Fatalf("ParseOpcode(%q): %v", test.Src, err)
			}

			paths := opc.ForTrie()
			if len(paths) != test.WantPaths {
				t.Errorf("ForTrie() returned %d paths, want %d", len(paths), test.WantPaths)
			}
		})
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOfSubstring(s, substr) >= 0
}

func indexOfSubstring(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
