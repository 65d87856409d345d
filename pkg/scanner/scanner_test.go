package scanner

import "testing"

func TestFindFirstMatchesWildcards(t *testing.T) {
	p := Compile("51 B8 ?? ?? ?? ?? FF D0 59 FF E0")
	data := []byte{0x00, 0x51, 0xB8, 0x11, 0x22, 0x33, 0x44, 0xFF, 0xD0, 0x59, 0xFF, 0xE0, 0x00}
	addr, ok := FindFirst(p, Region{Base: 0x10000000, Data: data})
	if !ok {
		t.Fatal("expected a match")
	}
	if addr != 0x10000001 {
		t.Fatalf("got %#x, want 0x10000001", addr)
	}
}

func TestFindFirstDeterminismAgainstFindAll(t *testing.T) {
	p := Compile("90 90")
	data := []byte{0x01, 0x90, 0x90, 0x02, 0x90, 0x90, 0x03}
	region := Region{Base: 0x2000, Data: data}

	first, ok := FindFirst(p, region)
	if !ok {
		t.Fatal("expected a match")
	}
	all := FindAll(p, region)
	if len(all) == 0 || all[0] != first {
		t.Fatalf("FindFirst %#x disagrees with FindAll %v", first, all)
	}
}

func TestCompileMalformedPatternNeverMatches(t *testing.T) {
	p := Compile("ZZ not hex")
	if _, ok := FindFirst(p, Region{Data: []byte{1, 2, 3}}); ok {
		t.Fatal("malformed pattern should never match")
	}
	if all := FindAll(p, Region{Data: []byte{1, 2, 3}}); len(all) != 0 {
		t.Fatal("malformed pattern should yield empty FindAll")
	}
}

func TestFindFirstOfTriesInOrder(t *testing.T) {
	patterns := []Pattern{Compile("AA"), Compile("BB")}
	data := []byte{0xBB, 0xAA}
	addr, idx, ok := FindFirstOf(patterns, Region{Base: 0x100, Data: data})
	if !ok || idx != 0 || addr != 0x101 {
		t.Fatalf("got addr=%#x idx=%d ok=%v", addr, idx, ok)
	}
}
