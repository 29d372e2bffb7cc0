// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"sort"
	"strings"
)

// Options configures one run of the generator: which CPU
// modes to build decode roots for (in the order their
// FD_TABLE_OFFSET_* defines should be named), whether to
// retain UNDOC-flagged entries, and which packed field
// layout to emit.
type Options struct {
	Modes     []int // e.g. []int{32, 64}
	WithUndoc bool
	Layout    Layout
}

// Output holds the four generated C fragments, ready to be
// written to the generator's four output files.
type Output struct {
	DecodeMnemonics string
	DecodeTable     string
	EncodeMnemonics string
	EncodeTable     string

	ByteSize   int
	KindCounts map[TableKind]int
}

// Generate runs the full pipeline over entries -- decode
// mnemonic list, decode trie construction/dedup/layout,
// encoder table construction -- producing the four output
// fragments as a unit so no partial output is ever written
// on failure (spec §7). Mirrors original_source/
// parseinstrs.py's __main__ body.
func Generate(entries []Entry, opts Options) (*Output, error) {
	mnemSet := make(map[string]bool)
	for _, e := range entries {
		mnemSet[e.Desc.Mnemonic] = true
	}
	mnemonics := make([]string, 0, len(mnemSet))
	for m := range mnemSet {
		mnemonics = append(mnemonics, m)
	}
	sort.Strings(mnemonics)

	decodeMnems := RenderDecodeMnemonics(mnemonics)

	table := NewTable(len(opts.Modes))
	for _, e := range entries {
		opcode, desc := e.Opcode, e.Desc

		for i, mode := range opts.Modes {
			only := 96 - mode // ONLY32 for mode=64, ONLY64 for mode=32.
			if desc.Flags[onlyFlag(only)] {
				continue
			}

			ign66 := opcode.Prefix == "NP" || opcode.Prefix == "66" || opcode.Prefix == "F2" || opcode.Prefix == "F3"

			encoded, err := desc.Encode(ign66)
			if err != nil {
				return nil, err
			}

			for _, path := range opcode.ForTrie() {
				if err := table.AddOpcode(path, encoded, i); err != nil {
					return nil, err
				}
			}
		}
	}

	table.Deduplicate()

	compiled, err := table.Compile(opts.Layout)
	if err != nil {
		return nil, err
	}

	mnemonicsIntel := make([]string, len(mnemonics))
	for i, m := range mnemonics {
		mnemonicsIntel[i] = IntelMnemonic(m)
	}

	modeOffsets := make(map[int]int, len(opts.Modes))
	for i, mode := range opts.Modes {
		modeOffsets[mode] = compiled.RootOffsets[i]
	}

	decodeTable, err := RenderDecodeTable(compiled, opts.Layout, mnemonicsIntel, modeOffsets)
	if err != nil {
		return nil, err
	}

	encTable, err := BuildEncoderTable(entries)
	if err != nil {
		return nil, err
	}

	var fdeMnemNames []string
	for _, e := range encTable.Entries {
		// Only canonical (non-alt) names are FE_MNEMONIC'd;
		// alt-chain overflow slots reference FE_MNEM_MAX+N,
		// which isn't a mnemonic name.
		if !strings.HasPrefix(e.Index, "FE_MNEM_MAX+") {
			fdeMnemNames = append(fdeMnemNames, e.Index)
		}
	}
	sort.Strings(fdeMnemNames)

	encMnems := RenderEncodeMnemonics(fdeMnemNames)
	encTableText := encTable.Render()

	return &Output{
		DecodeMnemonics: decodeMnems,
		DecodeTable:     decodeTable,
		EncodeMnemonics: encMnems,
		EncodeTable:     encTableText,
		ByteSize:        compiled.ByteSize(),
		KindCounts:      compiled.KindCounts,
	}, nil
}

func onlyFlag(mode int) string {
	if mode == 32 {
		return "ONLY32"
	}
	return "ONLY64"
}
