// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import "fmt"

// TrieEntry is one node of the decode trie: either a
// non-leaf table of the given kind (Children has exactly
// Kind.Arity() slots, empty string meaning "unset"), or
// an INSTR leaf referencing a descriptor by index.
type TrieEntry struct {
	Kind     TableKind
	Children []string // empty for INSTR leaves
	DescIdx  int      // valid only when Kind == KindInstr
}

func newTableEntry(kind TableKind) *TrieEntry {
	return &TrieEntry{Kind: kind, Children: make([]string, kind.Arity())}
}

func newInstrEntry(descIdx int) *TrieEntry {
	return &TrieEntry{Kind: KindInstr, DescIdx: descIdx}
}

// valueKey returns a string uniquely identifying this
// entry's structural value (kind, child links, and leaf
// descriptor index), used by the deduplicator to detect
// structurally-identical nodes. Two entries with the same
// valueKey are, by definition, interchangeable.
func (e *TrieEntry) valueKey() string {
	if e.Kind == KindInstr {
		return fmt.Sprintf("I:%d", e.DescIdx)
	}

	key := make([]byte, 0, 64)
	key = append(key, byte(e.Kind), '|')
	for _, c := range e.Children {
		key = append(key, c...)
		key = append(key, 0)
	}
	return string(key)
}

// Table is the decode trie builder: an insertion-ordered
// dictionary of named nodes (mirroring the reference
// generator's OrderedDict), one or more mode roots, and
// the interned set of leaf descriptors. See spec §4.4.
type Table struct {
	data  map[string]*TrieEntry
	order []string // insertion order of every name ever added to data.

	Roots []string

	descs    []Encoded
	descsMap map[Encoded]int

	offsets     map[string]int
	annotations map[int]string
}

// NewTable creates a builder with rootCount mode roots
// (root0, root1, ...), each a TABLE_ROOT node.
func NewTable(rootCount int) *Table {
	t := &Table{
		data:     make(map[string]*TrieEntry),
		descsMap: make(map[Encoded]int),
	}

	for i := 0; i < rootCount; i++ {
		name := fmt.Sprintf("root%d", i)
		t.Roots = append(t.Roots, name)
		t.insert(name, newTableEntry(KindRoot))
	}

	return t
}

func (t *Table) insert(name string, entry *TrieEntry) {
	if _, exists := t.data[name]; !exists {
		t.order = append(t.order, name)
	}
	t.data[name] = entry
}

// updateTable installs entryVal under the name
// entryName, and records it as child idx of the node
// named name -- mirroring Table._update_table. It is
// fatal to overwrite an already-set child slot (that
// only happens when an opcode is specified twice).
func (t *Table) updateTable(name string, idx int, entryName string, entryVal *TrieEntry, context string) error {
	old := t.data[name]
	if old.Children[idx] != "" {
		return structuralErrorf(context, "%s/%d already set, not overriding to %s", name, idx, entryName)
	}

	t.insert(entryName, entryVal)
	old.Children[idx] = entryName
	return nil
}

// AddOpcode installs instrEncoding at the terminal slot
// of path, walking (and lazily allocating) nodes from
// root `rootIdx`. See spec §4.4.
func (t *Table) AddOpcode(path []Step, instrEncoding Encoded, rootIdx int) error {
	name := fmt.Sprintf("t%d,%s", rootIdx, FormatOpcode(path))
	context := name

	tn := fmt.Sprintf("root%d", rootIdx)
	for i := 0; i < len(path)-1; i++ {
		kind, idx := path[i+1].Kind, path[i].Index

		prevTn := tn
		tn = t.data[tn].Children[idx]
		if tn == "" {
			tn = fmt.Sprintf("t%d,%s", rootIdx, FormatOpcode(path[:i+1]))
			if err := t.updateTable(prevTn, idx, tn, newTableEntry(kind), context); err != nil {
				return err
			}
		}

		if t.data[tn].Kind != kind {
			return structuralErrorf(context, "node %s has kind %s, want %s", tn, t.data[tn].Kind, kind)
		}
	}

	descIdx, ok := t.descsMap[instrEncoding]
	if !ok {
		descIdx = len(t.descs)
		t.descsMap[instrEncoding] = descIdx
		t.descs = append(t.descs, instrEncoding)
	}

	return t.updateTable(tn, path[len(path)-1].Index, name, newInstrEntry(descIdx), context)
}

// Descs returns the interned descriptor records, in
// first-use (insertion) order.
func (t *Table) Descs() []Encoded { return t.descs }
