// Package analyzer decodes the minimal x86 instruction shapes the
// protection's call sites appear as, locates the finalize-CRC landmark
// inside each candidate stub, and classifies every protected function into
// one of four variants.
package analyzer

import (
	"encoding/binary"

	"github.com/sysfce2/noceg/pkg/peimage"
	"github.com/sysfce2/noceg/pkg/scanner"
	"github.com/sysfce2/noceg/pkg/signatures"
)

// Variant is the classification tag placed on a protected-function record.
type Variant int

const (
	ConstantV2 Variant = iota + 1
	StolenV1
	StolenV2
	StolenV3
)

func (v Variant) String() string {
	switch v {
	case ConstantV2:
		return "ConstantV2"
	case StolenV1:
		return "StolenV1"
	case StolenV2:
		return "StolenV2"
	case StolenV3:
		return "StolenV3"
	default:
		return "Unknown"
	}
}

// Type is the JSON recipe's numeric patch-type tag for this variant,
// matching writer.h's ConstantOrStolen ordering (ConstantV2=1, StolenV1=2,
// StolenV2=3, StolenV3=4).
func (v Variant) Type() int {
	switch v {
	case ConstantV2:
		return 1
	case StolenV1:
		return 2
	case StolenV2:
		return 3
	case StolenV3:
		return 4
	default:
		return 0
	}
}

// dedupPriorityModern and dedupPriorityLegacy rank variants for the
// de-duplication pass: lower index wins.
var dedupPriorityModern = []Variant{ConstantV2, StolenV3, StolenV1, StolenV2}
var dedupPriorityLegacy = []Variant{StolenV1, StolenV2}

// Record is a protected-function record: the four addresses described in
// the data model plus its variant tag. All addresses here are buffer
// offsets ("memory addresses"); callers convert to image VAs via
// peimage.View.OffsetToVA before persisting to a recipe.
type Record struct {
	Func     uint32
	Prologue uint32
	EIP      uint32
	BP       uint32
	Variant  Variant
}

// Result is the full output of one analyzer pass.
type Result struct {
	Records            []Record
	RegisterThreadAddr uint32 // memory address, 0 if none found
}

// Analyze scans the code section of v for call/jmp/mov-eax instructions
// whose target lands in protectedFuncs or registerThreadCandidates
// (both given as memory addresses), classifies every protected-function
// hit, and de-duplicates by the priority order appropriate to legacy.
func Analyze(v *peimage.View, protectedFuncs, registerThreadCandidates map[uint32]bool, legacy bool) Result {
	code, codeOff := v.CodeSection()

	var res Result
	var pending []Record

	for i := 0; i+5 <= len(code); i++ {
		addr := uint32(codeOff + i)
		target, isTarget := decodeTargetAt(v, code, i, addr)
		if !isTarget {
			continue
		}

		if res.RegisterThreadAddr == 0 && len(registerThreadCandidates) > 0 {
			if registerThreadCandidates[target] {
				res.RegisterThreadAddr = target
			}
		}

		if protectedFuncs[target] {
			if rec, ok := classify(v, addr, target, legacy); ok {
				pending = append(pending, rec)
			}
		}
		// Deliberate one-byte advance regardless of decode outcome: the
		// protection's call sites may appear inside unrelated overlapping
		// decodes, so the loop counter (i++) is never skipped ahead.
	}

	res.Records = dedup(pending, legacy)
	return res
}

// decodeTargetAt attempts to decode exactly one instruction at code[i:] and,
// if it is a CALL imm/JMP imm/MOV EAX,imm shape, returns its target memory
// address.
func decodeTargetAt(v *peimage.View, code []byte, i int, addr uint32) (uint32, bool) {
	switch code[i] {
	case 0xE8, 0xE9: // CALL rel32 / JMP rel32 (5-byte near forms only)
		imm := int32(binary.LittleEndian.Uint32(code[i+1 : i+5]))
		return uint32(int64(addr) + 5 + int64(imm)), true
	case 0xB8: // MOV EAX, imm32
		imm := binary.LittleEndian.Uint32(code[i+1 : i+5])
		return uint32(v.VAToOffset(imm)), true
	default:
		return 0, false
	}
}

func readByte(v *peimage.View, addr uint32) byte {
	if int(addr) < 0 || int(addr) >= len(v.Data) {
		return 0
	}
	return v.Data[addr]
}

func classify(v *peimage.View, callSite, target uint32, legacy bool) (Record, bool) {
	next := callSite + 5
	if legacy {
		return classifyLegacy(v, callSite, next, target)
	}
	return classifyModern(v, callSite, next, target)
}

// classifyLegacy unifies the two legacy StolenV1/StolenV2 detection paths
// analyzer.h reaches independently: one via GetCEGFunctionType's own legacy
// branch (when a finalize-CRC pattern was found), the other via
// ProcessProtectedFunction's direct fallback (when none was). Both compute
// the identical eip/bp formula, so a finalize-CRC lookup is never performed
// for legacy binaries.
func classifyLegacy(v *peimage.View, callSite, next, target uint32) (Record, bool) {
	n0, n1 := readByte(v, next), readByte(v, next+1)
	switch {
	case n0 == 0xFF && n1 == 0xD0: // call eax
		eip := callSite
		if readByte(v, callSite-1) == 0x51 { // push ecx
			eip = callSite - 1
		}
		return Record{Func: target, Prologue: target, EIP: eip, BP: next + 2, Variant: StolenV1}, true
	case n0 == 0xFF && n1 == 0xE0: // jmp eax
		return Record{Func: target, Prologue: target, EIP: callSite, BP: next + 2, Variant: StolenV2}, true
	default:
		return Record{}, false
	}
}

func classifyModern(v *peimage.View, callSite, next, target uint32) (Record, bool) {
	hit, idx, found := findFinalizeCRC(v, target)
	if !found {
		return Record{}, false
	}
	bp := hit + signatures.FinalizeCRCPatterns[idx].Offset

	n0, n1 := readByte(v, next), readByte(v, next+1)
	callSiteByte := readByte(v, callSite)

	switch {
	case n0 == 0xC3 || n0 == 0x89: // ret, or mov r/m32,r32
		return Record{Func: target, Prologue: target, EIP: callSite, BP: bp, Variant: ConstantV2}, true
	case n0 == 0xFF && n1 == 0xE0: // jmp eax
		return Record{Func: target, Prologue: target, EIP: callSite, BP: bp, Variant: StolenV2}, true
	case callSiteByte == 0xEB: // short jmp over the call
		return Record{Func: target, Prologue: target, EIP: callSite, BP: bp, Variant: ConstantV2}, true
	default:
		prologue := findPrologueBackward(v, callSite)
		if prologue == 0 {
			prologue = target
		}
		return Record{Func: target, Prologue: prologue, EIP: callSite, BP: bp, Variant: StolenV3}, true
	}
}

func findFinalizeCRC(v *peimage.View, target uint32) (hit uint32, patternIndex int, ok bool) {
	end := int(target) + signatures.FinalizeCRCScanWindow
	if end > len(v.Data) {
		end = len(v.Data)
	}
	if int(target) >= end {
		return 0, -1, false
	}
	region := scanner.Region{Base: target, Data: v.Data[target:end]}
	return scanner.FindFirstOf(signatures.Compiled(), region)
}

// findPrologueBackward scans backward from callSite up to
// ProtectedFunctionPrologueScanWindow bytes for push ebp (0x55) immediately
// followed by mov ebp,esp (0x8B 0xEC); returns 0 if not found.
func findPrologueBackward(v *peimage.View, callSite uint32) uint32 {
	limit := int(callSite) - signatures.ProtectedFunctionPrologueScanWindow
	if limit < 0 {
		limit = 0
	}
	for addr := int(callSite) - 1; addr >= limit; addr-- {
		if v.Data[addr] == 0x55 && addr+2 < len(v.Data) && v.Data[addr+1] == 0x8B && v.Data[addr+2] == 0xEC {
			return uint32(addr)
		}
	}
	return 0
}

// dedup groups pending records by Func and keeps the single winner per
// group per the priority order for legacy/modern binaries (spec.md §9).
func dedup(pending []Record, legacy bool) []Record {
	priority := dedupPriorityModern
	if legacy {
		priority = dedupPriorityLegacy
	}
	rank := make(map[Variant]int, len(priority))
	for i, vv := range priority {
		rank[vv] = i
	}

	best := make(map[uint32]Record)
	order := make([]uint32, 0, len(pending))
	for _, rec := range pending {
		r, known := rank[rec.Variant]
		if !known {
			continue
		}
		cur, exists := best[rec.Func]
		if !exists {
			best[rec.Func] = rec
			order = append(order, rec.Func)
			continue
		}
		if r < rank[cur.Variant] {
			best[rec.Func] = rec
		}
	}

	out := make([]Record, 0, len(order))
	for _, fn := range order {
		out = append(out, best[fn])
	}
	return out
}
