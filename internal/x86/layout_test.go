// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import "testing"

func buildSingleOpcodeTable(t *testing.T) *Table {
	t.Helper()

	table := NewTable(1)

	desc, err := ParseInstrDesc("NP - - - - NOP")
	if err != nil {
		t.Fatalf("ParseInstrDesc: %v", err)
	}
	encoded, err := desc.Encode(false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	opc, err := ParseOpcode("90")
	if err != nil {
		t.Fatalf("ParseOpcode: %v", err)
	}

	if err := table.AddOpcode(opc.ForTrie()[0], encoded, 0); err != nil {
		t.Fatalf("AddOpcode: %v", err)
	}

	table.Deduplicate()
	return table
}

func TestTableCompileBasic(t *testing.T) {
	table := buildSingleOpcodeTable(t)

	compiled, err := table.Compile(LayoutCurrent)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(compiled.RootOffsets) != 1 {
		t.Fatalf("len(RootOffsets) = %d, want 1", len(compiled.RootOffsets))
	}
	if len(compiled.Descs) != 1 {
		t.Fatalf("len(Descs) = %d, want 1", len(compiled.Descs))
	}

	rootOff := compiled.RootOffsets[0]
	if rootOff < 0 || rootOff+8 > len(compiled.Words) {
		t.Fatalf("root offset %d out of range for %d words", rootOff, len(compiled.Words))
	}

	// Root slot 0 (escape=0, no VEX) must link to the
	// TABLE256 node. Non-leaf offsets are always 4-word
	// aligned, so offset<<1 always leaves its low 3 bits
	// clear for the kind tag to occupy.
	link := compiled.Words[rootOff+0]
	decodedKind := TableKind(link & 0x7)
	if decodedKind != KindTable256 {
		t.Errorf("root link kind = %v, want TABLE256", decodedKind)
	}
}

func TestTableCompileSizeLimit(t *testing.T) {
	// A single-opcode table (one root plus one TABLE256)
	// stays far under the 0x8000-word cap; this just
	// exercises that Compile succeeds without error on a
	// small input, not the over-limit error path.
	table := buildSingleOpcodeTable(t)
	if _, err := table.Compile(LayoutCurrent); err != nil {
		t.Fatalf("Compile: unexpected error: %v", err)
	}
}

func TestFieldsWordsRoundTrip(t *testing.T) {
	f := Fields{
		ModRMIdx:  xor3(0),
		ModRegIdx: xor3(1),
		Op0Size:   2,
		Op1Size:   2,
	}

	words, err := f.Words(LayoutCurrent)
	if err != nil {
		t.Fatalf("Words: %v", err)
	}

	v := uint64(words[0]) | uint64(words[1])<<16 | uint64(words[2])<<32
	packed, err := f.Pack(LayoutCurrent)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if v != packed {
		t.Errorf("Words reassembled = %#x, want Pack() = %#x", v, packed)
	}
}

func TestFieldsPackRejectsLegacyLayout(t *testing.T) {
	var f Fields
	if _, err := f.Pack(LayoutLegacy); err == nil {
		t.Fatal("Pack(LayoutLegacy): expected error, got nil")
	}
}

func TestCompiledBytesRoundTrip(t *testing.T) {
	table := buildSingleOpcodeTable(t)
	compiled, err := table.Compile(LayoutCurrent)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	b := compiled.Bytes()
	if len(b) != 2*len(compiled.Words) {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), 2*len(compiled.Words))
	}

	got := wordsFromBytes(b)
	if len(got) != len(compiled.Words) {
		t.Fatalf("len(wordsFromBytes) = %d, want %d", len(got), len(compiled.Words))
	}
	for i, w := range compiled.Words {
		if got[i] != w {
			t.Errorf("word[%d] = %#04x, want %#04x", i, got[i], w)
		}
	}
}
