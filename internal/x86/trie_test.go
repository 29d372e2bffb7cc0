// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import "testing"

func TestNewTableHasModeRoots(t *testing.T) {
	table := NewTable(2)

	if len(table.Roots) != 2 {
		t.Fatalf("len(Roots) = %d, want 2", len(table.Roots))
	}
	if table.Roots[0] != "root0" || table.Roots[1] != "root1" {
		t.Fatalf("Roots = %v, want [root0 root1]", table.Roots)
	}

	for _, r := range table.Roots {
		entry := table.data[r]
		if entry == nil {
			t.Fatalf("root %q not present in table", r)
		}
		if entry.Kind != KindRoot {
			t.Errorf("root %q kind = %v, want ROOT", r, entry.Kind)
		}
		if len(entry.Children) != KindRoot.Arity() {
			t.Errorf("root %q has %d children, want %d", r, len(entry.Children), KindRoot.Arity())
		}
	}
}

func TestAddOpcodeInsertsInstrLeaf(t *testing.T) {
	table := NewTable(1)

	opc, err := ParseOpcode("90")
	if err != nil {
		t.Fatalf("ParseOpcode: %v", err)
	}
	desc, err := ParseInstrDesc("NP - - - - NOP")
	if err != nil {
		t.Fatalf("ParseInstrDesc: %v", err)
	}
	encoded, err := desc.Encode(false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	paths := opc.ForTrie()
	if len(paths) != 1 {
		t.Fatalf("ForTrie() returned %d paths, want 1", len(paths))
	}

	if err := table.AddOpcode(paths[0], encoded, 0); err != nil {
		t.Fatalf("AddOpcode: %v", err)
	}

	root := table.data["root0"]
	childName := root.Children[0] // escape=0, no VEX -> slot 0
	if childName == "" {
		t.Fatal("root0 slot 0 was never set")
	}

	table256 := table.data[childName]
	if table256.Kind != KindTable256 {
		t.Fatalf("child kind = %v, want TABLE256", table256.Kind)
	}

	leafName := table256.Children[0x90]
	if leafName == "" {
		t.Fatal("TABLE256 slot 0x90 was never set")
	}

	leaf := table.data[leafName]
	if leaf.Kind != KindInstr {
		t.Fatalf("leaf kind = %v, want INSTR", leaf.Kind)
	}
	if len(table.Descs()) != 1 {
		t.Fatalf("len(Descs()) = %d, want 1", len(table.Descs()))
	}
}

func TestAddOpcodeRejectsDuplicateSlot(t *testing.T) {
	table := NewTable(1)

	opc, err := ParseOpcode("90")
	if err != nil {
		t.Fatalf("ParseOpcode: %v", err)
	}
	desc, err := ParseInstrDesc("NP - - - - NOP")
	if err != nil {
		t.Fatalf("ParseInstrDesc: %v", err)
	}
	encoded, err := desc.Encode(false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	paths := opc.ForTrie()
	if err := table.AddOpcode(paths[0], encoded, 0); err != nil {
		t.Fatalf("first AddOpcode: %v", err)
	}
	if err := table.AddOpcode(paths[0], encoded, 0); err == nil {
		t.Fatal("second AddOpcode with the same path: expected error, got nil")
	}
}

func TestAddOpcodeInternsIdenticalDescriptors(t *testing.T) {
	table := NewTable(1)

	desc, err := ParseInstrDesc("NP - - - - NOP")
	if err != nil {
		t.Fatalf("ParseInstrDesc: %v", err)
	}
	encoded, err := desc.Encode(false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	opcA, _ := ParseOpcode("90")
	opcB, _ := ParseOpcode("91")

	if err := table.AddOpcode(opcA.ForTrie()[0], encoded, 0); err != nil {
		t.Fatalf("AddOpcode(90): %v", err)
	}
	if err := table.AddOpcode(opcB.ForTrie()[0], encoded, 0); err != nil {
		t.Fatalf("AddOpcode(91): %v", err)
	}

	if len(table.Descs()) != 1 {
		t.Fatalf("len(Descs()) = %d, want 1 (identical descriptors should intern)", len(table.Descs()))
	}
}
