// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import "testing"

// TestDeduplicateMergesIdenticalSubtries installs the same
// opcode under two different roots, so the two subtries
// below the roots are identical and after deduplication
// both roots should point at the very same TABLE256 node.
func TestDeduplicateMergesIdenticalSubtries(t *testing.T) {
	table := NewTable(2)

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
	path := opc.ForTrie()[0]

	if err := table.AddOpcode(path, encoded, 0); err != nil {
		t.Fatalf("AddOpcode(root 0): %v", err)
	}
	if err := table.AddOpcode(path, encoded, 1); err != nil {
		t.Fatalf("AddOpcode(root 1): %v", err)
	}

	before := len(table.liveOrder())

	table.Deduplicate()

	root0 := table.data["root0"].Children[0]
	root1 := table.data["root1"].Children[0]
	if root0 != root1 {
		t.Errorf("after Deduplicate, root0 and root1 point at different nodes (%q vs %q)", root0, root1)
	}

	after := len(table.liveOrder())
	if after >= before {
		t.Errorf("Deduplicate did not shrink the table: before=%d after=%d", before, after)
	}
}

// TestDeduplicateIsIdempotent runs Deduplicate twice and
// checks the second pass changes nothing further.
func TestDeduplicateIsIdempotent(t *testing.T) {
	table := NewTable(2)

	desc, _ := ParseInstrDesc("NP - - - - NOP")
	encoded, _ := desc.Encode(false)
	opc, _ := ParseOpcode("90")
	path := opc.ForTrie()[0]

	table.AddOpcode(path, encoded, 0)
	table.AddOpcode(path, encoded, 1)

	table.Deduplicate()
	afterFirst := len(table.liveOrder())

	table.Deduplicate()
	afterSecond := len(table.liveOrder())

	if afterFirst != afterSecond {
		t.Errorf("second Deduplicate pass changed live node count: %d -> %d", afterFirst, afterSecond)
	}
}
