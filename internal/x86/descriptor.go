// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"sort"
	"strings"
)

// OpKind describes one possible operand kind token from
// the instruction descriptor grammar: a size (in bytes,
// or one of the SZOp/SZVec sentinels) and a register or
// memory/immediate class.
type OpKind struct {
	Size int
	Kind string
}

// Raw OpKind.Size sentinels, as found directly in the
// OPKINDS table (distinct from the compact size *codes*
// used inside the packed bitfield -- see sizeCode).
const (
	RawSZOp  = -1
	RawSZVec = -2
)

const (
	KindMem = "mem"
	KindImm = "imm"
	KindGP  = "GP"
)

// AbsSize resolves a possibly-relative OpKind size to a
// concrete byte count given the instruction's effective
// operand size and vector size (both in bytes).
func (k OpKind) AbsSize(opsz, vecsz int) int {
	switch k.Size {
	case RawSZOp:
		return opsz
	case RawSZVec:
		return vecsz
	default:
		return k.Size
	}
}

// OPKINDS is the closed table of operand kind tokens
// recognised in an instruction descriptor's operand
// slots. sizeidx: 0, fixed size, SZOp, or SZVec; regtype
// drives the op{N}_regty bitfield (see descriptorRegtys).
var OPKINDS = map[string]OpKind{
	"IMM":    {RawSZOp, KindImm},
	"IMM8":   {1, KindImm},
	"IMM16":  {2, KindImm},
	"IMM32":  {4, KindImm},
	"IMM64":  {8, KindImm},
	"GP":     {RawSZOp, "GP"},
	"GP8":    {1, "GP"},
	"GP16":   {2, "GP"},
	"GP32":   {4, "GP"},
	"GP64":   {8, "GP"},
	"MMX":    {8, "MMX"},
	"XMM":    {RawSZVec, "XMM"},
	"XMM8":   {1, "XMM"},
	"XMM16":  {2, "XMM"},
	"XMM32":  {4, "XMM"},
	"XMM64":  {8, "XMM"},
	"XMM128": {16, "XMM"},
	"XMM256": {32, "XMM"},
	"SEG":    {RawSZOp, "SEG"},
	"SEG16":  {2, "SEG"},
	"FPU":    {10, "FPU"},
	"MEM":    {RawSZOp, KindMem},
	"MEMV":   {RawSZVec, KindMem},
	"MEMZ":   {0, KindMem},
	"MEM8":   {1, KindMem},
	"MEM16":  {2, KindMem},
	"MEM32":  {4, KindMem},
	"MEM64":  {8, KindMem},
	"MEM128": {16, KindMem},
	"MEM256": {32, KindMem},
	"MEM512": {64, KindMem},
	"MASK8":  {1, "MASK"},
	"MASK16": {2, "MASK"},
	"MASK32": {4, "MASK"},
	"MASK64": {8, "MASK"},
	"BND":    {0, "BND"},
	"CR":     {0, "CR"},
	"DR":     {0, "DR"},
}

// Fields holds one instruction's packed-descriptor
// bitfield values, named identically to the wire layout
// in spec §3. Zero is the correct default for every
// field not set by the encoding's preset or by a flag.
type Fields struct {
	ModRMIdx    int
	ModRegIdx   int
	VexRegIdx   int
	ZeroRegIdx  int
	ImmIdx      int
	ZeroRegVal  int
	Lock        int
	ImmControl  int
	VSIB        int
	Op0Size     int
	Op1Size     int
	Op2Size     int
	Op3Size     int
	OpSize      int
	SizeFix1    int
	SizeFix2    int
	InstrWidth  int
	Op0RegTy    int
	Op1RegTy    int
	Op2RegTy    int
	Unused      int
	Ign66       int
}

// imm_control subtype codes.
const (
	ImmControlNone     = 0
	ImmControlConst1   = 1
	ImmControlMoffs    = 2
	ImmControlIs4      = 3
	ImmControlPlain    = 4
	ImmControlPlain8   = 5 // only ever set via the byte bit below
	ImmControlSignExt  = 6
	ImmControlJumpTgt  = 7
)

// xor3 stores a 2-bit operand-role slot index as slot^3,
// so that zero means "unused". See spec §3 and §9.
func xor3(slot int) int { return slot ^ 3 }

// ENCODINGS is the closed set of encoding-kind tags. Each
// preset fixes which operand occupies which ModR/M/VEX
// role slot and the base imm_control, exactly mirroring
// the reference generator's ENCODINGS table.
var ENCODINGS = map[string]Fields{
	"NP":   {},
	"M":    {ModRMIdx: xor3(0)},
	"M1":   {ModRMIdx: xor3(0), ImmIdx: xor3(1), ImmControl: ImmControlConst1},
	"MI":   {ModRMIdx: xor3(0), ImmIdx: xor3(1), ImmControl: ImmControlPlain},
	"MC":   {ModRMIdx: xor3(0), ZeroRegIdx: xor3(1), ZeroRegVal: 1},
	"MR":   {ModRMIdx: xor3(0), ModRegIdx: xor3(1)},
	"RM":   {ModRMIdx: xor3(1), ModRegIdx: xor3(0)},
	"RMA":  {ModRMIdx: xor3(1), ModRegIdx: xor3(0), ZeroRegIdx: xor3(2)},
	"MRI":  {ModRMIdx: xor3(0), ModRegIdx: xor3(1), ImmIdx: xor3(2), ImmControl: ImmControlPlain},
	"RMI":  {ModRMIdx: xor3(1), ModRegIdx: xor3(0), ImmIdx: xor3(2), ImmControl: ImmControlPlain},
	"MRC":  {ModRMIdx: xor3(0), ModRegIdx: xor3(1), ZeroRegIdx: xor3(2), ZeroRegVal: 1},
	"AM":   {ModRMIdx: xor3(1), ZeroRegIdx: xor3(0)},
	"MA":   {ModRMIdx: xor3(0), ZeroRegIdx: xor3(1)},
	"I":    {ImmIdx: xor3(0), ImmControl: ImmControlPlain},
	"IA":   {ZeroRegIdx: xor3(0), ImmIdx: xor3(1), ImmControl: ImmControlPlain},
	"O":    {ModRegIdx: xor3(0)},
	"OI":   {ModRegIdx: xor3(0), ImmIdx: xor3(1), ImmControl: ImmControlPlain},
	"OA":   {ModRegIdx: xor3(0), ZeroRegIdx: xor3(1)},
	"S":    {ModRegIdx: xor3(0), VSIB: 1}, // segment register in bits 3,4,5
	"A":    {ZeroRegIdx: xor3(0)},
	"D":    {ImmIdx: xor3(0), ImmControl: ImmControlSignExt},
	"FD":   {ZeroRegIdx: xor3(0), ImmIdx: xor3(1), ImmControl: ImmControlMoffs},
	"TD":   {ZeroRegIdx: xor3(1), ImmIdx: xor3(0), ImmControl: ImmControlMoffs},
	"RVM":  {ModRMIdx: xor3(2), ModRegIdx: xor3(0), VexRegIdx: xor3(1)},
	"RVMI": {ModRMIdx: xor3(2), ModRegIdx: xor3(0), VexRegIdx: xor3(1), ImmIdx: xor3(3), ImmControl: ImmControlPlain},
	"RVMR": {ModRMIdx: xor3(2), ModRegIdx: xor3(0), VexRegIdx: xor3(1), ImmIdx: xor3(3), ImmControl: ImmControlIs4},
	"RMV":  {ModRMIdx: xor3(1), ModRegIdx: xor3(0), VexRegIdx: xor3(2)},
	"VM":   {ModRMIdx: xor3(1), VexRegIdx: xor3(0)},
	"VMI":  {ModRMIdx: xor3(1), VexRegIdx: xor3(0), ImmIdx: xor3(2), ImmControl: ImmControlPlain},
	"MVR":  {ModRMIdx: xor3(0), ModRegIdx: xor3(2), VexRegIdx: xor3(1)},
}

// encodingOrder lists the keys of ENCODINGS in a stable
// order for diagnostics; map iteration order in Go is
// randomised and must never leak into generator output.
var encodingOrder = func() []string {
	keys := make([]string, 0, len(ENCODINGS))
	for k := range ENCODINGS {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

// InstrDesc is a parsed instruction descriptor: mnemonic,
// encoding tag, up to four operand kinds, and a flag set.
// See spec §3 "Instruction Descriptor" and §4.2.
type InstrDesc struct {
	Mnemonic string
	Encoding string
	Operands []OpKind
	Flags    map[string]bool
}

// descriptorRegtys maps an operand kind string to its
// op{N}_regty bitfield code; kinds absent from this table
// (mem, imm, SEG, CR, DR, ...) encode as 7.
var descriptorRegtys = map[string]int{
	"GP":   0,
	"FPU":  1,
	"XMM":  2,
	"MASK": 3,
	"MMX":  4,
	"BND":  5,
}

// sizeCode maps a raw OpKind.Size value to the compact
// code used inside the packed bitfield: 0->0, 1->1, 2->2,
// 4->3, 8->4, 16->5, 32->6, 64->7, 10 (FPU)->0, SZOp->-2,
// SZVec->-3.
func sizeCode(raw int) int {
	switch raw {
	case 0, 10:
		return 0
	case 1:
		return 1
	case 2:
		return 2
	case 4:
		return 3
	case 8:
		return 4
	case 16:
		return 5
	case 32:
		return 6
	case 64:
		return 7
	case RawSZOp:
		return -2
	case RawSZVec:
		return -3
	default:
		panic("x86: unreachable operand size")
	}
}

// ParseInstrDesc parses an instruction descriptor string:
// encoding tag, up to four operand kinds (or "-"), the
// mnemonic, then any number of flag tags. See spec §4.2.
func ParseInstrDesc(s string) (InstrDesc, error) {
	fields := strings.Fields(s)
	if len(fields) < 6 {
		return InstrDesc{}, parseErrorf(s, "instruction descriptor has too few fields")
	}

	if _, ok := ENCODINGS[fields[0]]; !ok {
		return InstrDesc{}, parseErrorf(s, "unknown encoding tag %q", fields[0])
	}

	var operands []OpKind
	for _, tok := range fields[1:5] {
		if tok == "-" {
			continue
		}
		opkind, ok := OPKINDS[tok]
		if !ok {
			return InstrDesc{}, parseErrorf(s, "unknown operand kind %q", tok)
		}
		operands = append(operands, opkind)
	}

	flags := make(map[string]bool, len(fields)-6)
	for _, tok := range fields[6:] {
		if !knownFlags[tok] {
			return InstrDesc{}, parseErrorf(s, "unknown flag tag %q", tok)
		}
		flags[tok] = true
	}

	return InstrDesc{
		Mnemonic: fields[5],
		Encoding: fields[0],
		Operands: operands,
		Flags:    flags,
	}, nil
}

// knownFlags is the closed set of recognised flag tags
// from spec §3 "Instruction Descriptor".
var knownFlags = map[string]bool{
	"DEF64": true, "FORCE64": true, "SIZE_8": true, "INSTR_WIDTH": true,
	"IMM_8": true, "LOCK": true, "VSIB": true, "USE66": true, "IGN66": true,
	"NFx": true, "ONLY32": true, "ONLY64": true, "UNDOC": true,
	"ENC_REP": true, "ENC_REPCC": true, "ENC_SEPSZ": true, "ENC_NOSZ": true,
}

// Encoded is the descriptor's encoded form: the bit-packed
// Fields record and the FDI_<mnemonic> name to index it by.
type Encoded struct {
	Name   string
	Fields Fields
}

// Encode bit-packs desc per spec §4.3, given whether the
// opcode line already declares a legacy-prefix selector
// (in which case the decoder should ignore a runtime 66
// prefix unless USE66 overrides that).
func (desc InstrDesc) Encode(ign66 bool) (Encoded, error) {
	f := ENCODINGS[desc.Encoding]

	sizes := make(map[int]bool)
	for _, op := range desc.Operands {
		sizes[sizeCode(op.Size)] = true
	}

	var fixed []int
	for sz := range sizes {
		if sz >= 0 {
			fixed = append(fixed, sz)
		}
	}
	sort.Ints(fixed) // Deterministic starting order before the stable partition below.

	// Sort fixed sizes encodable in size_fix2 (1..4) to the end, matching
	// the Python `sorted(..., key=lambda x: 1 <= x <= 4)`.
	sort.SliceStable(fixed, func(i, j int) bool {
		return !in1to4(fixed[i]) && in1to4(fixed[j])
	})

	if len(fixed) > 2 || (len(fixed) == 2 && !in1to4(fixed[1])) {
		return Encoded{}, encodingErrorf(desc.Mnemonic, "invalid fixed operand sizes: %v", fixed)
	}

	sizeSlots := append(append([]int{}, fixed...), 1, 1)
	sizeSlots = sizeSlots[:2]
	sizeSlots = append(sizeSlots, -2, -3) // See operand_sizes in decode.c.

	f.SizeFix1 = sizeSlots[0]
	f.SizeFix2 = sizeSlots[1] - 1

	for i, op := range desc.Operands {
		if i > 3 {
			break
		}
		sz := sizeCode(op.Size)
		regty, ok := descriptorRegtys[op.Kind]
		if !ok {
			regty = 7
		}

		idx := indexOfInt(sizeSlots, sz)
		if idx < 0 {
			return Encoded{}, encodingErrorf(desc.Mnemonic, "operand size %d not among resolved sizes %v", sz, sizeSlots)
		}

		switch i {
		case 0:
			f.Op0Size = idx
			f.Op0RegTy = regty
		case 1:
			f.Op1Size = idx
			f.Op1RegTy = regty
		case 2:
			f.Op2Size = idx
			f.Op2RegTy = regty
		case 3:
			f.Op3Size = idx
			if regty != 7 && regty != 2 {
				return Encoded{}, encodingErrorf(desc.Mnemonic, "invalid regty for operand 3, must be VEC")
			}
		}
	}

	if desc.Flags["SIZE_8"] {
		f.OpSize = 1
	}
	if desc.Flags["DEF64"] {
		f.OpSize = 2
	}
	if desc.Flags["FORCE64"] {
		f.OpSize = 3
	}
	if desc.Flags["INSTR_WIDTH"] {
		f.InstrWidth = 1
	}
	if desc.Flags["LOCK"] {
		f.Lock = 1
	}
	if desc.Flags["VSIB"] {
		f.VSIB = 1
	}

	if !desc.Flags["USE66"] && (ign66 || desc.Flags["IGN66"]) {
		f.Ign66 = 1
	}

	if f.ImmControl >= ImmControlPlain {
		immOp, ok := findImmOperand(desc.Operands)
		if !ok {
			return Encoded{}, encodingErrorf(desc.Mnemonic, "encoding %s requires an immediate operand", desc.Encoding)
		}

		if desc.Flags["IMM_8"] || immOp.Size == 1 || (immOp.Size == RawSZOp && desc.Flags["SIZE_8"]) {
			f.ImmControl |= 1
		}
	}

	return Encoded{Name: "FDI_" + desc.Mnemonic, Fields: f}, nil
}

func in1to4(x int) bool { return x >= 1 && x <= 4 }

func indexOfInt(xs []int, x int) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

func findImmOperand(ops []OpKind) (OpKind, bool) {
	for _, op := range ops {
		if op.Kind == KindImm {
			return op, true
		}
	}
	return OpKind{}, false
}
