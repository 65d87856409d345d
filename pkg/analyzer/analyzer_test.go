package analyzer

import (
	"testing"

	"github.com/sysfce2/noceg/pkg/peimage"
)

func newView(buf []byte) *peimage.View {
	return &peimage.View{
		Data:             buf,
		ImageBase:        0x00400000,
		FirstSectionVA:   0,
		FirstSectionRaw:  0x1000,
		FirstSectionSize: uint32(len(buf) - 0x1000),
		CodeBase:         0x00401000,
	}
}

func putPattern(buf []byte, off int, bytes ...byte) {
	copy(buf[off:], bytes)
}

// TestClassifyConstantV2 reproduces the shape of spec.md §8 scenario 1: a
// CALL at offset 0x1000 into a stub at 0x100B whose finalize-CRC landmark
// lands the breakpoint exactly 40 bytes into the stub.
func TestClassifyConstantV2(t *testing.T) {
	buf := make([]byte, 0x2000)
	// CALL rel32 at 0x1000: target = 0x1000 + 5 + 0x06 = 0x100B.
	putPattern(buf, 0x1000, 0xE8, 0x06, 0x00, 0x00, 0x00)
	putPattern(buf, 0x1005, 0xC3) // next == ret
	// finalize-CRC pattern (offset-16 family) placed so hit+16 == target+40.
	putPattern(buf, 0x1023,
		0x8B, 0x45, 0x00, 0x33, 0xC1, 0x89, 0x45, 0x00,
		0x8B, 0x45, 0x00, 0xC1, 0xE8, 0x00, 0x33, 0x45, 0x00)

	v := newView(buf)
	res := Analyze(v, map[uint32]bool{0x100B: true}, nil, false)

	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Variant != ConstantV2 {
		t.Fatalf("variant = %v, want ConstantV2", rec.Variant)
	}
	if rec.Func != 0x100B || rec.Prologue != 0x100B || rec.EIP != 0x1000 || rec.BP != 0x1033 {
		t.Fatalf("got %+v", rec)
	}
}

// TestClassifyStolenV1Legacy exercises the unified legacy StolenV1 path:
// push ecx; call eax-preceding-call; call eax.
func TestClassifyStolenV1Legacy(t *testing.T) {
	buf := make([]byte, 0x2000)
	// push ecx (0x51) at 0x1100, CALL rel32 at 0x1101 targeting 0x110B,
	// "call eax" (FF D0) immediately after the call instruction at 0x1106.
	putPattern(buf, 0x1100, 0x51)
	putPattern(buf, 0x1101, 0xE8, 0x05, 0x00, 0x00, 0x00)
	putPattern(buf, 0x1106, 0xFF, 0xD0)

	v := newView(buf)
	res := Analyze(v, map[uint32]bool{0x110B: true}, nil, true)

	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Variant != StolenV1 {
		t.Fatalf("variant = %v, want StolenV1", rec.Variant)
	}
	if rec.Func != 0x110B || rec.EIP != 0x1100 || rec.BP != 0x1108 {
		t.Fatalf("got %+v, want eip=call_site-1 (push ecx present), bp=next+2", rec)
	}
}

// TestClassifyStolenV3BackwardPrologue reproduces spec.md §8 scenario 3's
// shape: modern, the next byte after the call is a NOP (none of the
// special-case bytes), and a push-ebp/mov-ebp,esp prologue sits 64 bytes
// before the call site.
func TestClassifyStolenV3BackwardPrologue(t *testing.T) {
	buf := make([]byte, 0x3000)
	putPattern(buf, 0x1FC0, 0x55, 0x8B, 0xEC) // prologue, 64 bytes before call site
	putPattern(buf, 0x2000, 0xE8, 0x0F, 0x00, 0x00, 0x00)
	putPattern(buf, 0x2005, 0x90) // next == nop: none of the special cases
	// finalize-CRC landmark inside the stub so classification proceeds.
	putPattern(buf, 0x2014+24,
		0x8B, 0x45, 0x00, 0x33, 0xC1, 0x89, 0x45, 0x00,
		0x8B, 0x45, 0x00, 0xC1, 0xE8, 0x00, 0x33, 0x45, 0x00)

	v := newView(buf)
	res := Analyze(v, map[uint32]bool{0x2014: true}, nil, false)

	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Variant != StolenV3 {
		t.Fatalf("variant = %v, want StolenV3", rec.Variant)
	}
	if rec.Func != 0x2014 || rec.Prologue != 0x1FC0 || rec.EIP != 0x2000 {
		t.Fatalf("got %+v", rec)
	}
	if rec.Variant.Type() != 4 {
		t.Fatalf("Type() = %d, want 4", rec.Variant.Type())
	}
}

func TestDedupPicksHighestPriority(t *testing.T) {
	pending := []Record{
		{Func: 0x100, Variant: StolenV2},
		{Func: 0x100, Variant: ConstantV2},
		{Func: 0x200, Variant: StolenV1},
	}
	out := dedup(pending, false)
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	for _, rec := range out {
		if rec.Func == 0x100 && rec.Variant != ConstantV2 {
			t.Fatalf("expected ConstantV2 to win over StolenV2, got %v", rec.Variant)
		}
	}
}
