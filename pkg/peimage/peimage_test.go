package peimage

import "testing"

// buildMinimalPE32 assembles the smallest buffer pe.NewFile will parse as a
// 32-bit image: a DOS stub pointing at NT headers, one IMAGE_FILE_HEADER,
// one IMAGE_OPTIONAL_HEADER32, and one section header, matching the
// constants used in spec.md's scenario 5 (image base 0x00400000, first
// section VA 0x1000, raw pointer 0x400).
func buildMinimalPE32(imageBase, sectionVA, sectionRaw, sectionSize uint32) []byte {
	const lfanew = 0x80
	buf := make([]byte, 0x1000)
	buf[0], buf[1] = 'M', 'Z'
	putU32(buf, 0x3c, lfanew)

	off := lfanew
	buf[off], buf[off+1], buf[off+2], buf[off+3] = 'P', 'E', 0, 0
	off += 4

	// IMAGE_FILE_HEADER (20 bytes)
	putU16(buf, off+0, 0x014c) // Machine: IMAGE_FILE_MACHINE_I386
	putU16(buf, off+2, 1)      // NumberOfSections
	putU16(buf, off+16, 224)   // SizeOfOptionalHeader (IMAGE_OPTIONAL_HEADER32)
	putU16(buf, off+18, 0x0102)
	fileHeaderOff := off
	off += 20

	// IMAGE_OPTIONAL_HEADER32
	putU16(buf, off+0, 0x10b) // Magic: PE32
	putU32(buf, off+28, imageBase)
	putU32(buf, off+32, 0x1000) // SectionAlignment
	putU32(buf, off+36, 0x200)  // FileAlignment
	putU32(buf, off+56, sectionSize+sectionVA) // SizeOfImage (rough)
	putU32(buf, off+60, sectionRaw)            // SizeOfHeaders (not accurate but nonzero)
	putU16(buf, off+68, 3)                       // Subsystem
	putU16(buf, off+70, 0x0040)                  // DllCharacteristics: DYNAMIC_BASE
	optionalHeaderOff := off
	_ = optionalHeaderOff
	off += 224

	// Section header (40 bytes)
	copy(buf[off:off+8], []byte(".text\x00\x00\x00"))
	putU32(buf, off+8, sectionSize)  // VirtualSize
	putU32(buf, off+12, sectionVA)   // VirtualAddress
	putU32(buf, off+16, sectionSize) // SizeOfRawData
	putU32(buf, off+20, sectionRaw)  // PointerToRawData

	_ = fileHeaderOff
	return buf
}

func putU16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func TestLoadRejectsEmpty(t *testing.T) {
	if _, err := Load(nil); err != ErrEmptySource {
		t.Fatalf("got %v, want ErrEmptySource", err)
	}
}

func TestLoadRejectsBadDosMagic(t *testing.T) {
	if _, err := Load(make([]byte, 0x40)); err != ErrBadDosMagic {
		t.Fatalf("got %v, want ErrBadDosMagic", err)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	buf := buildMinimalPE32(0x00400000, 0x1000, 0x400, 0x4000)
	v, err := Load(buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.ImageBase != 0x00400000 {
		t.Fatalf("ImageBase = %#x", v.ImageBase)
	}
	if v.CodeBase != 0x00401000 {
		t.Fatalf("CodeBase = %#x, want 0x00401000", v.CodeBase)
	}

	off := v.VAToOffset(0x00401234)
	va := v.OffsetToVA(off)
	if va != 0x00401234 {
		t.Fatalf("round trip: got %#x, want 0x00401234", va)
	}
}

func TestClearASLRFlag(t *testing.T) {
	buf := buildMinimalPE32(0x00400000, 0x1000, 0x400, 0x4000)
	v, err := Load(buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !v.ASLREnabled() {
		t.Fatal("expected ASLR flag set in fixture")
	}
	v.ClearASLRFlag()
	if v.ASLREnabled() {
		t.Fatal("ClearASLRFlag did not clear the dynamic-base bit")
	}
}
