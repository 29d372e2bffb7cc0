// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package x86 implements the opcode grammar, instruction
// descriptor grammar, packed descriptor bit layout, decode
// trie construction and layout, and encoder table assembly
// that together generate the static decode/encode tables
// consumed by an x86/x86-64 instruction decoder and encoder.
package x86

import (
	"regexp"
	"strconv"
)

// TableKind identifies the shape of a decode trie node:
// how many children it has and what byte it is indexed
// by. The numeric values are a wire contract with the
// runtime decoder (they are packed into the low bits of
// every inter-node link) and must not be renumbered.
type TableKind int

const (
	KindNone        TableKind = 0
	KindInstr       TableKind = 1
	KindTable256    TableKind = 2
	KindTable16     TableKind = 3
	KindTable8E     TableKind = 4
	KindTablePrefix TableKind = 5
	KindTableVEX    TableKind = 6
	KindRoot        TableKind = -1
)

// Arity returns the number of child slots a node of
// this kind holds. Root nodes are indexed by the 2-bit
// escape plus the VEX bit and therefore have 8 slots.
func (k TableKind) Arity() int {
	switch k {
	case KindTable256:
		return 256
	case KindTable16:
		return 16
	case KindTable8E:
		return 8
	case KindTablePrefix, KindTableVEX:
		return 4
	case KindRoot:
		return 8
	default:
		return 0
	}
}

func (k TableKind) String() string {
	switch k {
	case KindInstr:
		return "INSTR"
	case KindTable256:
		return "TABLE256"
	case KindTable16:
		return "TABLE16"
	case KindTable8E:
		return "TABLE8E"
	case KindTablePrefix:
		return "TABLE_PREFIX"
	case KindTableVEX:
		return "TABLE_VEX"
	case KindRoot:
		return "ROOT"
	default:
		return "NONE"
	}
}

// Step is one (kind, index) pair along a concrete trie
// path, selecting a single child slot of a node of the
// given kind.
type Step struct {
	Kind  TableKind
	Index int
}

// ModRegClass is the mode class half of an opcode's /r
// ModR/M extension: whether the form requires mod==11
// (register), mod!=11 (memory), or either.
type ModRegClass string

const (
	ModRegReg    ModRegClass = "r"
	ModRegMem    ModRegClass = "m"
	ModRegEither ModRegClass = "rm"
)

// ModReg describes a /digit, /r, /m, /Nr or /Nm opcode
// extension: an optional fixed reg-field digit (nil
// means "wildcard, fan out over all 8") plus the mode
// class that constrains the mod field.
type ModReg struct {
	Digit *int // nil = wildcard over 0..7
	Class ModRegClass
}

// Opcode is a parsed opcode descriptor: an abstract
// pattern denoting a family of concrete byte sequences.
// See spec §3 "Opcode" for the field semantics.
type Opcode struct {
	Prefix   string // "", "NP", "66", "F2", "F3", "NFx"
	Escape   int    // 0, 1=0f, 2=0f38, 3=0f3a
	Opc      int    // primary opcode byte
	Extended bool   // fan Opc out over opc..opc+7
	ModReg   *ModReg
	OpcExt   int // 0 or 0xc0..0xff
	VEX      bool
	VEXL     string // "0", "1", "IG", ""
	REXW     string // "0", "1", "IG", ""
}

var opcodeRegexp = regexp.MustCompile(
	`^(?:(?P<prefixes>(?P<vex>VEX\.)?(?P<legacy>NP|66|F2|F3|NFx)\.` +
		`(?:W(?P<rexw>[01]|IG)\.)?(?:L(?P<vexl>[01]|IG)\.)?))?` +
		`(?P<escape>0f38|0f3a|0f|)` +
		`(?P<opcode>[0-9a-f]{2})` +
		`(?:(?P<extended>\+)|/(?P<modreg>[0-7]|[rm]|[0-7][rm])|(?P<opcext>[c-f][0-9a-f]))?$`)

var escapeNames = []string{"", "0f", "0f38", "0f3a"}
var prefixNames = []string{"NP", "66", "F3", "F2"}

// ParseOpcode parses an opcode string against the
// grammar from spec §4.1.
func ParseOpcode(s string) (Opcode, error) {
	m := opcodeRegexp.FindStringSubmatch(s)
	if m == nil {
		return Opcode{}, parseErrorf(s, "malformed opcode %q", s)
	}

	g := groups(opcodeRegexp, m)

	var opc Opcode
	opc.Prefix = g["legacy"]
	opc.VEX = g["vex"] != ""
	opc.VEXL = g["vexl"]
	opc.REXW = g["rexw"]

	escape := indexOf(escapeNames, g["escape"])
	if escape < 0 {
		return Opcode{}, parseErrorf(s, "unknown escape %q", g["escape"])
	}
	opc.Escape = escape

	opcByte, err := strconv.ParseInt(g["opcode"], 16, 32)
	if err != nil {
		return Opcode{}, parseErrorf(s, "invalid opcode byte: %v", err)
	}
	opc.Opc = int(opcByte)
	opc.Extended = g["extended"] != ""

	if mr := g["modreg"]; mr != "" {
		if mr[0] == 'r' || mr[0] == 'm' {
			opc.ModReg = &ModReg{Class: ModRegClass(mr[:1])}
		} else {
			digit, _ := strconv.Atoi(mr[:1])
			class := ModRegEither
			if len(mr) == 2 {
				class = ModRegClass(mr[1:2])
			}
			opc.ModReg = &ModReg{Digit: &digit, Class: class}
		}
	}

	if oe := g["opcext"]; oe != "" {
		v, err := strconv.ParseInt(oe, 16, 32)
		if err != nil {
			return Opcode{}, parseErrorf(s, "invalid opcode extension byte: %v", err)
		}
		opc.OpcExt = int(v)
	}

	return opc, nil
}

// groups turns a FindStringSubmatch result into a
// name-keyed map using the regexp's named capture
// groups, defaulting absent groups to "".
func groups(re *regexp.Regexp, m []string) map[string]string {
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name == "" || i >= len(m) {
			continue
		}
		out[name] = m[i]
	}
	return out
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

// stage is one (kind, values) step in the Cartesian
// product that ForTrie expands into concrete paths.
type stage struct {
	kind   TableKind
	values []int
}

// ForTrie expands an Opcode into the non-empty set of
// concrete trie paths it denotes: one path per
// extended-opcode byte, prefix alternative, ModR/M
// reg/mod wildcard resolution, and VEX.W/L wildcard
// resolution, taken as a Cartesian product across all
// declared stages. See spec §4.1.
func (o Opcode) ForTrie() [][]Step {
	var stages []stage

	stages = append(stages, stage{KindRoot, []int{o.Escape | boolInt(o.VEX)<<2}})

	if !o.Extended {
		stages = append(stages, stage{KindTable256, []int{o.Opc}})
	} else {
		vals := make([]int, 8)
		for i := range vals {
			vals[i] = o.Opc + i
		}
		stages = append(stages, stage{KindTable256, vals})
	}

	if o.Prefix != "" {
		if o.Prefix == "NFx" {
			stages = append(stages, stage{KindTablePrefix, []int{0, 1}})
		} else {
			stages = append(stages, stage{KindTablePrefix, []int{indexOf(prefixNames, o.Prefix)}})
		}
	}

	if o.OpcExt != 0 {
		stages = append(stages, stage{KindTable16, []int{((o.OpcExt - 0xc0) >> 3) | 8}})
		stages = append(stages, stage{KindTable8E, []int{o.OpcExt & 7}})
	}

	if o.ModReg != nil {
		var mod []int
		switch o.ModReg.Class {
		case ModRegMem:
			mod = []int{0}
		case ModRegReg:
			mod = []int{1 << 3}
		default:
			mod = []int{0, 1 << 3}
		}

		var reg []int
		if o.ModReg.Digit != nil {
			reg = []int{*o.ModReg.Digit}
		} else {
			reg = []int{0, 1, 2, 3, 4, 5, 6, 7}
		}

		vals := make([]int, 0, len(mod)*len(reg))
		for _, x := range mod {
			for _, y := range reg {
				vals = append(vals, x+y)
			}
		}
		stages = append(stages, stage{KindTable16, vals})
	}

	if o.VEXL == "0" || o.VEXL == "1" || o.REXW == "0" || o.REXW == "1" {
		rexw := wildcardBit(o.REXW, 0)
		vexl := wildcardBit(o.VEXL, 1)

		vals := make([]int, 0, len(rexw)*len(vexl))
		for _, w := range rexw {
			for _, l := range vexl {
				vals = append(vals, w+l)
			}
		}
		stages = append(stages, stage{KindTableVEX, vals})
	}

	return cartesianSteps(stages)
}

// wildcardBit returns the set of bit values a VEX.W/L
// style attribute expands to at bit position `pos`:
// a single value if fixed to "0"/"1", both values if
// "IG" or unset (both mean the same thing here -- the
// decoder doesn't distinguish an ignored bit from an
// absent attribute).
func wildcardBit(v string, pos uint) []int {
	switch v {
	case "0":
		return []int{0}
	case "1":
		return []int{1 << pos}
	default: // "IG" or ""
		return []int{0, 1 << pos}
	}
}

// cartesianSteps expands a list of (kind, values) stages
// into the Cartesian product of concrete step sequences,
// preserving stage order.
func cartesianSteps(stages []stage) [][]Step {
	if len(stages) == 0 {
		return nil
	}

	total := 1
	for _, s := range stages {
		total *= len(s.values)
	}

	paths := make([][]Step, total)
	for i := range paths {
		paths[i] = make([]Step, len(stages))
	}

	// Distribute values across combinations in stage
	// order, iterating the fastest-varying stage last,
	// mirroring itertools.product's lexicographic order.
	indices := make([]int, len(stages))
	for i := range paths {
		for j, s := range stages {
			paths[i][j] = Step{Kind: s.kind, Index: s.values[indices[j]]}
		}

		for n := len(indices) - 1; n >= 0; n-- {
			indices[n]++
			if indices[n] < len(stages[n].values) {
				break
			}
			indices[n] = 0
		}
	}

	return paths
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FormatOpcode renders a concrete path back into a
// human-readable opcode string, used to build debug
// node names in the trie builder. It is not the inverse
// of ParseOpcode in general (multiple paths may render
// with the same prefix ordering quirks as the Python
// original), only a stable, readable label.
func FormatOpcode(path []Step) string {
	var prefix, body string
	for _, st := range path {
		switch st.Kind {
		case KindRoot:
			body += escapeNames[st.Index&3]
			if st.Index>>2 != 0 {
				prefix += "VEX."
			}
		case KindTable256:
			body += hex2(st.Index)
		case KindTable16:
			modLetter := "m"
			if st.Index>>3 != 0 {
				modLetter = "r"
			}
			body += "/" + hex1(st.Index&7) + modLetter
		case KindTable8E:
			body += "+rm=" + hex1(st.Index)
		case KindTablePrefix:
			if st.Index&4 != 0 {
				prefix += "VEX."
			}
			prefix += prefixOrNP(st.Index&3) + "."
		case KindTableVEX:
			body += "W" + hex1(st.Index&1) + ".L" + hex1(st.Index>>1) + "."
		}
	}
	return prefix + body
}

func prefixOrNP(i int) string {
	return [4]string{"NP", "66", "F3", "F2"}[i]
}

func hex1(v int) string { return strconv.FormatInt(int64(v), 16) }
func hex2(v int) string {
	s := strconv.FormatInt(int64(v), 16)
	if len(s) < 2 {
		s = "0" + s
	}
	return s
}
