// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseInstrDesc(t *testing.T) {
	tests := []struct {
		Name string
		Src  string
		Want InstrDesc
		Err  string
	}{
		{
			Name: "simple MR form",
			Src:  "MR GP GP - - ADD",
			Want: InstrDesc{
				Mnemonic: "ADD",
				Encoding: "MR",
				Operands: []OpKind{OPKINDS["GP"], OPKINDS["GP"]},
				Flags:    map[string]bool{},
			},
		},
		{
			Name: "with flags",
			Src:  "MI GP IMM8 - - ADD LOCK IMM_8",
			Want: InstrDesc{
				Mnemonic: "ADD",
				Encoding: "MI",
				Operands: []OpKind{OPKINDS["GP"], OPKINDS["IMM8"]},
				Flags:    map[string]bool{"LOCK": true, "IMM_8": true},
			},
		},
		{
			Name: "unknown encoding",
			Src:  "ZZ GP - - - ADD",
			Err:  "unknown encoding tag",
		},
		{
			Name: "unknown operand kind",
			Src:  "MR ZZZZZ - - - ADD",
			Err:  "unknown operand kind",
		},
		{
			Name: "too few fields",
			Src:  "MR GP",
			Err:  "too few fields",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := ParseInstrDesc(test.Src)
			if test.Err != "" {
				if err == nil || !contains(err.Error(), test.Err) {
					t.Fatalf("ParseInstrDesc(%q) error = %v, want substring %q", test.Src, err, test.Err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInstrDesc(%q): unexpected error: %v", test.Src, err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Errorf("ParseInstrDesc(%q) (-want +got):\n%s", test.Src, diff)
			}
		})
	}
}

func TestInstrDescEncode(t *testing.T) {
	desc, err := ParseInstrDesc("MR GP GP - - ADD")
	if err != nil {
		t.Fatalf("ParseInstrDesc: %v", err)
	}

	enc, err := desc.Encode(false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if enc.Name != "FDI_ADD" {
		t.Errorf("Name = %q, want FDI_ADD", enc.Name)
	}
	if enc.Fields.ModRMIdx != xor3(0) || enc.Fields.ModRegIdx != xor3(1) {
		t.Errorf("Fields = %+v, want ModRMIdx=%d ModRegIdx=%d", enc.Fields, xor3(0), xor3(1))
	}
}

func TestInstrDescEncodeRejectsMissingImmediate(t *testing.T) {
	desc := InstrDesc{
		Mnemonic: "BAD",
		Encoding: "MI",
		Operands: []OpKind{OPKINDS["GP"]},
		Flags:    map[string]bool{},
	}

	if _, err := desc.Encode(false); err == nil {
		t.Fatal("Encode: expected error for MI encoding without an immediate operand, got nil")
	}
}

func TestInstrDescEncodeIgn66(t *testing.T) {
	desc, err := ParseInstrDesc("MR GP GP - - ADD")
	if err != nil {
		t.Fatalf("ParseInstrDesc: %v", err)
	}

	enc, err := desc.Encode(true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc.Fields.Ign66 != 1 {
		t.Errorf("Ign66 = %d, want 1 when ign66 is passed and USE66 isn't set", enc.Fields.Ign66)
	}
}
