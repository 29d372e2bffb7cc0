// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"sort"
	"strings"
)

// suffixNode is one node of the reverse-suffix trie used
// by MergeMnemonics to find shared string tails.
type suffixNode struct {
	children map[byte]*suffixNode
}

func newSuffixNode() *suffixNode { return &suffixNode{children: make(map[byte]*suffixNode)} }

// MergeMnemonics packs mnemonics into a single
// NUL-separated blob that shares suffixes across names
// (so "ADD" lies inside "PADD", its common tail becoming a
// common prefix once reversed), and returns each
// mnemonic's starting byte offset into that blob, in the
// same order as the input. The returned blob writes each
// NUL as the C escape `\0` and drops the final NUL. See spec §4.6's mnemonic
// string table and original_source/parseinstrs.py's
// parse_mnemonics.
func MergeMnemonics(mnemonics []string) (blob string, offsets []int) {
	root := newSuffixNode()
	for _, m := range mnemonics {
		cur := root
		for i := len(m) - 1; i >= 0; i-- {
			c := m[i]
			if cur.children[c] == nil {
				cur.children[c] = newSuffixNode()
			}
			cur = cur.children[c]
		}
	}

	var paths []string
	var walk func(n *suffixNode, suffix string)
	walk = func(n *suffixNode, suffix string) {
		if len(n.children) == 0 {
			// suffix already carries the trailing NUL from
			// walk's initial call; nodes that stay leaves
			// are exactly the mnemonics not subsumed as a
			// suffix of some longer mnemonic.
			paths = append(paths, suffix)
			return
		}

		// Deterministic order over byte-keyed children.
		keys := make([]byte, 0, len(n.children))
		for c := range n.children {
			keys = append(keys, c)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, c := range keys {
			walk(n.children[c], string(c)+suffix)
		}
	}
	walk(root, "\x00")

	sort.Strings(paths)
	merged := strings.Join(paths, "")

	blob = strings.ReplaceAll(merged[:len(merged)-1], "\x00", "\\0")

	offsets = make([]int, len(mnemonics))
	for i, m := range mnemonics {
		offsets[i] = strings.Index(merged, m+"\x00")
	}

	return blob, offsets
}

// Intel-name massaging: the decode/encode tables are keyed
// by the reference generator's internal mnemonic spelling
// (which distinguishes SSE vs MMX forms, 64-bit absolute
// moves, segment/control/debug register moves,
// and far jumps/calls via a suffix or prefix), but the
// printable mnemonic table handed to callers uses plain
// Intel syntax. This is a supplemented feature: the
// distilled spec is silent on display names, but
// original_source/parseinstrs.py's __main__ block derives
// mnemonics_intel from exactly this replacement chain.
var intelStrip = []string{"SSE_", "MMX_"}

// IntelMnemonic renders internal to the Intel-syntax
// spelling shown to end users.
func IntelMnemonic(internal string) string {
	m := internal
	for _, prefix := range intelStrip {
		m = strings.TrimPrefix(m, prefix)
	}

	switch {
	case m == "MOVABS":
		m = "MOV"
	case m == "JMPF":
		m = "JMP FAR"
	case m == "CALLF":
		m = "CALL FAR"
	}

	for _, suffix := range []string{"_S2G", "_G2S", "_CR", "_DR"} {
		m = strings.TrimSuffix(m, suffix)
	}

	return strings.ToLower(m)
}
