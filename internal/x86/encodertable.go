// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
	"sort"
	"strings"
)

// Entry pairs one opcode-line's parsed Opcode with its
// InstrDesc, the unit of input the encoder table builder
// and decode trie builder both consume.
type Entry struct {
	Opcode Opcode
	Desc   InstrDesc
}

// encVariant is one concrete (operand size x vector size x
// prefix x operand-type) combination of a mnemonic, reduced
// to the fields the emitted C initializer needs.
type encVariant struct {
	Encoding string
	ImmSize  int
	TysI     int
	OpcS     string
}

// key identifies variants that collapse together: the
// reference generator dedups on (encoding, imm_size, tys_i)
// only, letting later prefix/opc_s variation be shadowed.
func (v encVariant) key() [3]interface{} { return [3]interface{}{v.Encoding, v.ImmSize, v.TysI} }

// tysCodes maps an operand kind to the `tys` nibble used by
// the runtime encoder to know how to read an operand,
// mirroring encode_table's inline dict literal.
var tysCodes = map[string]int{
	KindImm: 0, "SEG": 3, "FPU": 4, "MMX": 5, "XMM": 6,
	"BND": 8, "CR": 9, "DR": 10,
}

// encPrio orders encodings within a mnemonic's alt chain;
// encodings absent from this list sort like the first
// entry ("O"), per encode_table's dedup.sort key (see
// encPrioIndex).
var encPrio = []string{"O", "OA", "OI", "IA", "M", "MI", "MR", "RM"}

// EncoderEntry is one alt-chain slot: either the canonical
// FE_<MNEMONIC> name or a synthetic "FE_MNEM_MAX+N"
// overflow slot, its variant payload, and the name of the
// next slot in the chain ("0" terminates the chain).
type EncoderEntry struct {
	Index   string
	Alt     string
	Variant encVariant
}

// EncoderTable is the built encoder side of the generator:
// one alt chain per synthesized mnemonic name, in
// first-use order. See spec §4.7.
type EncoderTable struct {
	Entries []EncoderEntry
}

// BuildEncoderTable enumerates every encodable variant of
// every entry's mnemonic, dedups and orders each mnemonic's
// variant list, and threads them into alt chains. Ported
// from original_source/parseinstrs.py's encode_table,
// including the synthetic FE_NOP seed entry, the
// RESERVED_/ONLY32 skip, and the ENTER/MOVABS/MOVSX/MOVZX/
// XCHG_NOP special cases it carries as supplemented
// features (spec §9 is silent on the encoder table; this
// logic is sourced entirely from the original).
func BuildEncoderTable(entries []Entry) (*EncoderTable, error) {
	mnemonics := make(map[string][]encVariant)
	var mnemOrder []string
	push := func(name string, v encVariant) {
		if _, ok := mnemonics[name]; !ok {
			mnemOrder = append(mnemOrder, name)
		}
		mnemonics[name] = append(mnemonics[name], v)
	}

	// Synthetic one-byte NOP, not attached to any opcode line.
	push("FE_NOP", encVariant{Encoding: "NP", ImmSize: 0, TysI: 0, OpcS: "0x90"})

	for _, e := range entries {
		opcode, desc := e.Opcode, e.Desc

		if strings.HasPrefix(desc.Mnemonic, "RESERVED_") {
			continue
		}
		if desc.Flags["ONLY32"] {
			continue
		}

		opsizes := map[int]bool{16: true, 32: true, 64: true}
		if desc.Flags["SIZE_8"] {
			opsizes = map[int]bool{8: true}
		}
		hasVEX := false
		vecsizes := map[int]bool{128: true}

		opcI := opcode.Opc
		if opcode.OpcExt != 0 {
			opcI |= opcode.OpcExt << 8
		}
		if opcode.ModReg != nil && opcode.ModReg.Digit != nil {
			opcI |= *opcode.ModReg.Digit << 8
		}

		var opcFlags string
		opcFlags += [4]string{"", "|OPC_0F", "|OPC_0F38", "|OPC_0F3A"}[opcode.Escape]

		if opcode.VEX {
			hasVEX = true
			vecsizes = map[int]bool{128: true, 256: true}
			opcFlags += "|OPC_VEX"
		}

		if opcode.Prefix != "" {
			switch opcode.Prefix {
			case "66", "F2", "F3":
				opcFlags += "|OPC_" + opcode.Prefix
			}
			if !desc.Flags["USE66"] && opcode.Prefix != "NFx" {
				delete(opsizes, 16)
			}
		}

		switch opcode.VEXL {
		case "IG":
			vecsizes = map[int]bool{0: true}
		case "1", "0":
			drop := 128
			if opcode.VEXL == "0" {
				drop = 256
			}
			delete(vecsizes, drop)
			if opcode.VEXL == "1" {
				opcFlags += "|OPC_VEXL"
			}
		}

		switch opcode.REXW {
		case "IG":
			opsizes = map[int]bool{0: true}
		case "1", "0":
			drop := 32
			if opcode.REXW == "0" {
				drop = 64
			}
			delete(opsizes, drop)
			if opcode.REXW == "1" {
				opcFlags += "|OPC_REXW"
			}
		}

		if desc.Flags["DEF64"] {
			delete(opsizes, 32)
		}

		noOpSzOperand := true
		noVecSzOperand := true
		for _, op := range desc.Operands {
			if op.Size == RawSZOp {
				noOpSzOperand = false
			}
			if op.Size == RawSZVec {
				noVecSzOperand = false
			}
		}
		if !desc.Flags["INSTR_WIDTH"] && noOpSzOperand {
			opsizes = map[int]bool{0: true}
		}
		if !desc.Flags["VSIB"] && noVecSzOperand {
			vecsizes = map[int]bool{0: true}
		}
		if desc.Flags["ENC_NOSZ"] {
			opsizes = map[int]bool{0: true}
			vecsizes = map[int]bool{0: true}
		}

		separateOpsize := desc.Flags["ENC_SEPSZ"]
		prependOpsize := maxKey(opsizes) > 0 && !separateOpsize
		prependVecsize := hasVEX && maxKey(vecsizes) > 0 && !separateOpsize

		if desc.Flags["FORCE64"] {
			opsizes = map[int]bool{64: true}
			prependOpsize = false
		}

		enc := ENCODINGS[desc.Encoding]
		optypes := [4]string{"", "", "", ""}
		if enc.ModRMIdx != 0 {
			cls := "rm"
			if opcode.ModReg != nil {
				cls = string(opcode.ModReg.Class)
			}
			optypes[enc.ModRMIdx^3] = cls
		}
		if enc.ModRegIdx != 0 {
			optypes[enc.ModRegIdx^3] = "r"
		}
		if enc.VexRegIdx != 0 {
			optypes[enc.VexRegIdx^3] = "r"
		}
		if enc.ZeroRegIdx != 0 {
			optypes[enc.ZeroRegIdx^3] = "r"
		}
		if enc.ImmControl != 0 {
			optypes[enc.ImmIdx^3] = " iariioo"[enc.ImmControl : enc.ImmControl+1]
		}

		// Each non-empty optypes slot fans out over its
		// individual characters (a ModR/M slot fixed to
		// class "rm" yields both an 'r' and an 'm' variant),
		// mirroring Python's product() iterating a string
		// argument character-by-character.
		var otFields [][]string
		for _, ot := range optypes {
			if ot == "" {
				continue
			}
			chars := make([]string, len(ot))
			for i := 0; i < len(ot); i++ {
				chars[i] = string(ot[i])
			}
			otFields = append(otFields, chars)
		}
		otCombos := cartesianStrings(otFields)

		type prefixVariant struct{ name, flag string }
		prefixes := []prefixVariant{{"", ""}}
		if desc.Flags["LOCK"] {
			prefixes = append(prefixes, prefixVariant{"LOCK_", "|OPC_LOCK"})
		}
		if desc.Flags["ENC_REP"] {
			prefixes = append(prefixes, prefixVariant{"REP_", "|OPC_F3"})
		}
		if desc.Flags["ENC_REPCC"] {
			prefixes = append(prefixes, prefixVariant{"REPNZ_", "|OPC_F2"})
			prefixes = append(prefixes, prefixVariant{"REPZ_", "|OPC_F3"})
		}

		for _, opsize := range sortedKeys(opsizes) {
			for _, vecsize := range sortedKeys(vecsizes) {
				for _, prefix := range prefixes {
					for _, ots := range otCombos {
						if prefix.flag == "|OPC_LOCK" && ots[0] != "m" {
							continue
						}

						immSize := 0
						if enc.ImmControl >= ImmControlPlain {
							switch {
							case desc.Mnemonic == "ENTER":
								immSize = 3
							case desc.Flags["IMM_8"]:
								immSize = 1
							default:
								maxImmSize := 4
								if desc.Mnemonic == "MOVABS" {
									maxImmSize = 8
								}
								immOpsize := desc.Operands[enc.ImmIdx^3].AbsSize(opsize/8, vecsize/8)
								immSize = min(maxImmSize, immOpsize)
							}
						}

						var tys int
						for i, ot := range ots {
							op := desc.Operands[i]
							var ty int
							switch {
							case ot == "m":
								ty = 0xf
							case op.Kind == KindGP:
								if desc.Mnemonic == "MOVSX" || desc.Mnemonic == "MOVZX" || opsize == 8 {
									if op.AbsSize(opsize/8, vecsize/8) == 1 {
										ty = 2
									} else {
										ty = 1
									}
								} else {
									ty = 1
								}
							default:
								var ok bool
								ty, ok = tysCodes[op.Kind]
								if !ok {
									ty = -1
								}
							}
							tys |= (ty & 0xf) << (4 * i)
						}

						opcS := fmt.Sprintf("%#x", opcI) + opcFlags + prefix.flag
						if opsize == 16 {
							opcS += "|OPC_66"
						}
						if opsize == 64 && !desc.Flags["DEF64"] && !desc.Flags["FORCE64"] {
							opcS += "|OPC_REXW"
						}

						mnemName := desc.Mnemonic
						if mnemName == "MOVABS" {
							mnemName = "MOV"
						} else if mnemName == "XCHG_NOP" {
							mnemName = "XCHG"
						}

						name := "FE_" + prefix.name + mnemName
						if prependOpsize && !(desc.Flags["DEF64"] && opsize == 64) {
							name = appendSuffix(name, fmt.Sprintf("%d", opsize))
						}
						if prependVecsize {
							name = appendSuffix(name, fmt.Sprintf("%d", vecsize))
						}
						for i, ot := range ots {
							op := desc.Operands[i]
							name += strings.ReplaceAll(ot, "o", "")
							if separateOpsize {
								name += fmt.Sprintf("%d", op.AbsSize(opsize/8, vecsize/8)*8)
							}
						}

						push(name, encVariant{Encoding: desc.Encoding, ImmSize: immSize, TysI: tys, OpcS: opcS})
					}
				}
			}
		}
	}

	var out EncoderTable
	altIndex := 0
	for _, mnem := range mnemOrder {
		variants := mnemonics[mnem]

		var dedup []encVariant
		seen := make(map[[3]interface{}]bool)
		for _, v := range variants {
			k := v.key()
			if seen[k] {
				continue
			}
			seen[k] = true
			dedup = append(dedup, v)
		}

		sort.SliceStable(dedup, func(i, j int) bool {
			if dedup[i].ImmSize != dedup[j].ImmSize {
				return dedup[i].ImmSize < dedup[j].ImmSize
			}
			pi, pj := encPrioIndex(dedup[i].Encoding), encPrioIndex(dedup[j].Encoding)
			return pi < pj
		})

		indices := make([]string, len(dedup))
		indices[0] = mnem
		for i := 1; i < len(dedup); i++ {
			indices[i] = fmt.Sprintf("FE_MNEM_MAX+%d", altIndex+i-1)
		}

		alts := make([]string, len(dedup))
		copy(alts, indices[1:])
		alts[len(alts)-1] = "0"

		altIndex += len(dedup) - 1

		for i, v := range dedup {
			out.Entries = append(out.Entries, EncoderEntry{Index: indices[i], Alt: alts[i], Variant: v})
		}
	}

	return &out, nil
}

// Render produces the C designated-initializer body for
// the encoder table, one `[idx] = { ... }` line per entry.
func (t *EncoderTable) Render() string {
	var b strings.Builder
	for _, e := range t.Entries {
		fmt.Fprintf(&b, "[%s] = { .enc = ENC_%s, .immsz = %d, .tys = %#x, .opc = %s, .alt = %s },\n",
			e.Index, e.Variant.Encoding, e.Variant.ImmSize, e.Variant.TysI, e.Variant.OpcS, e.Alt)
	}
	return b.String()
}

// encPrioIndex mirrors the reference generator's sort key
// `e[0] in enc_prio and enc_prio.index(e[0])`: since Python
// treats False as 0, an encoding absent from encPrio sorts
// identically to one at position 0 ("O"), not last.
func encPrioIndex(enc string) int {
	for i, e := range encPrio {
		if e == enc {
			return i
		}
	}
	return 0
}

// appendSuffix mirrors Python's `f"_{x}"[name[-1] not in digits:]`:
// a separating underscore is only inserted when the name
// doesn't already end in a digit.
func appendSuffix(name, suffix string) string {
	last := name[len(name)-1]
	if last >= '0' && last <= '9' {
		return name + suffix
	}
	return name + "_" + suffix
}

func maxKey(m map[int]bool) int {
	max := -1 << 62
	for k := range m {
		if k > max {
			max = k
		}
	}
	return max
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// cartesianStrings expands a list of per-field candidate
// strings into the Cartesian product of per-field choices,
// mirroring itertools.product(*fields). A field with more
// than one candidate really does multiply out the result --
// a ModR/M slot fixed to class "rm" fans out into both an
// 'r' and an 'm' field here, not a single combination.
func cartesianStrings(fields [][]string) [][]string {
	if len(fields) == 0 {
		return [][]string{{}}
	}

	rest := cartesianStrings(fields[1:])
	var out [][]string
	for _, v := range fields[0] {
		for _, r := range rest {
			combo := append([]string{v}, r...)
			out = append(out, combo)
		}
	}
	return out
}
