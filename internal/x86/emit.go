// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"sort"
	"strconv"
	"strings"
	"text/template"
)

// decodeTableTemplate renders the five #if/#elif-guarded
// branches a single generated decode-table C file is
// compiled under, one per FD_DECODE_TABLE_* define, per
// spec §4.6/§4.7 and the reference generator's `template`.
var decodeTableTemplate = template.Must(template.New("decodeTable").Parse(
	`// Auto-generated file -- do not modify!
#if defined(FD_DECODE_TABLE_DATA)
{{.HexTable}}
#elif defined(FD_DECODE_TABLE_DESCS)
{{.Descs}}
#elif defined(FD_DECODE_TABLE_STRTAB1)
{{.MnemonicsBlob}}
#elif defined(FD_DECODE_TABLE_STRTAB2)
{{.MnemonicsTab}}
#elif defined(FD_DECODE_TABLE_DEFINES)
{{.Defines}}
#else
#error "unspecified decode table"
#endif
`))

// decodeTableData is the decodeTableTemplate's input.
type decodeTableData struct {
	HexTable      string
	Descs         string
	MnemonicsBlob string
	MnemonicsTab  string
	Defines       string
}

// RenderDecodeTable assembles the decode-table C fragment
// from a compiled trie, its descriptor records, the
// display-name mnemonic list (already Intel-massaged and
// sorted), and the per-mode table-offset defines.
func RenderDecodeTable(compiled *Compiled, layout Layout, mnemonicsIntel []string, modeOffsets map[int]int) (string, error) {
	var descLines []string
	for _, d := range compiled.Descs {
		words, err := d.Fields.Words(layout)
		if err != nil {
			return "", err
		}
		descLines = append(descLines, "{"+d.Name+","+itoa(int(words[0]))+","+itoa(int(words[1]))+","+itoa(int(words[2]))+"},")
	}

	blob, offsets := MergeMnemonics(mnemonicsIntel)
	tab := itoaJoin(offsets)

	var defines []string
	for _, mode := range sortedIntKeys(modeOffsets) {
		defines = append(defines, "#define FD_TABLE_OFFSET_"+itoa(mode)+" "+itoa(modeOffsets[mode]))
	}

	data := decodeTableData{
		HexTable:      renderTable(wordsFromBytes(compiled.Bytes()), compiled.Annotations),
		Descs:         strings.Join(descLines, "\n"),
		MnemonicsBlob: `"` + blob + `"`,
		MnemonicsTab:  tab,
		Defines:       strings.Join(defines, "\n"),
	}

	var b strings.Builder
	if err := decodeTableTemplate.Execute(&b, data); err != nil {
		return "", layoutErrorf("", "rendering decode table: %w", err)
	}
	return b.String(), nil
}

// RenderDecodeMnemonics renders one FD_MNEMONIC(name,index)
// line per internal mnemonic, in the order given; it does
// not sort (Generate passes the mnemonics already sorted).
func RenderDecodeMnemonics(mnemonics []string) string {
	var b strings.Builder
	for i, m := range mnemonics {
		b.WriteString("FD_MNEMONIC(" + m + "," + itoa(i) + ")\n")
	}
	return b.String()
}

// RenderEncodeMnemonics renders one FE_MNEMONIC(name,index)
// line per encoder mnemonic name, in the order given; it
// does not sort (Generate sorts the names first, mirroring
// encode_table's `sorted(mnemonics.keys())`).
func RenderEncodeMnemonics(names []string) string {
	var b strings.Builder
	for i, m := range names {
		b.WriteString("FE_MNEMONIC(" + m + "," + itoa(i) + ")\n")
	}
	return b.String()
}

func itoa(v int) string { return strconv.Itoa(v) }

func itoaJoin(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = itoa(x)
	}
	return strings.Join(parts, ",")
}

func sortedIntKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
