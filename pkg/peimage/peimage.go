// Package peimage loads a 32-bit PE image into a byte buffer and provides
// the address arithmetic every other package needs: converting between a
// virtual address in image space and a pointer into the in-memory buffer.
package peimage

import (
	"errors"
	"fmt"
	"io"

	"github.com/Binject/debug/pe"
)

var (
	ErrEmptySource     = errors.New("peimage: empty source buffer")
	ErrBadDosMagic     = errors.New("peimage: bad DOS signature")
	ErrBadPeMagic      = errors.New("peimage: bad PE signature")
	ErrZeroImageBase   = errors.New("peimage: zero image base")
	ErrNoFirstSection  = errors.New("peimage: no first section")
	ErrZeroRawPointer  = errors.New("peimage: zero raw data pointer")
	ErrZeroVirtualSize = errors.New("peimage: zero virtual size")
)

// dllCharacteristicsDynamicBase is the IMAGE_DLLCHARACTERISTICS_DYNAMIC_BASE
// flag bit (ASLR-enabled) in IMAGE_OPTIONAL_HEADER32.DllCharacteristics.
const dllCharacteristicsDynamicBase = 0x0040

// View is a loaded PE image: a byte buffer plus the constants needed to
// translate between image-space virtual addresses and offsets into that
// buffer. The constants are fixed by Load; Data itself is modified in place
// by ClearASLRFlag and by pkg/patcher.
type View struct {
	Data []byte

	ImageBase        uint32
	FirstSectionVA   uint32
	FirstSectionRaw  uint32
	FirstSectionSize uint32
	CodeBase         uint32

	lfanew                   int64
	dllCharacteristicsOffset int64
}

// Load validates and indexes a PE byte buffer, matching the constants the
// original signature finder extracts in LoadBinaryImage: declared image
// base, the first section's virtual address and raw-data pointer, and its
// virtual size (which must be non-zero).
func Load(data []byte) (*View, error) {
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	if len(data) < 0x40 || data[0] != 'M' || data[1] != 'Z' {
		return nil, ErrBadDosMagic
	}

	f, err := pe.NewFile(newReaderAt(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPeMagic, err)
	}
	defer f.Close()

	opt, ok := f.OptionalHeader.(*pe.OptionalHeader32)
	if !ok {
		return nil, fmt.Errorf("%w: not a 32-bit image", ErrBadPeMagic)
	}
	if opt.ImageBase == 0 {
		return nil, ErrZeroImageBase
	}
	if len(f.Sections) == 0 {
		return nil, ErrNoFirstSection
	}

	sec := f.Sections[0]
	if sec.Offset == 0 {
		return nil, ErrZeroRawPointer
	}
	if sec.VirtualSize == 0 {
		return nil, ErrZeroVirtualSize
	}

	lfanew := int64(uint32(data[0x3c]) | uint32(data[0x3d])<<8 | uint32(data[0x3e])<<16 | uint32(data[0x3f])<<24)
	// IMAGE_OPTIONAL_HEADER32.DllCharacteristics sits 94 bytes after the
	// "PE\0\0" signature: 4 (signature) + 20 (IMAGE_FILE_HEADER) + 70
	// (offset of DllCharacteristics within IMAGE_OPTIONAL_HEADER32).
	dllCharOffset := lfanew + 94

	return &View{
		Data:                     data,
		ImageBase:                opt.ImageBase,
		FirstSectionVA:           sec.VirtualAddress,
		FirstSectionRaw:          sec.Offset,
		FirstSectionSize:         sec.VirtualSize,
		CodeBase:                 opt.ImageBase + sec.VirtualAddress,
		lfanew:                   lfanew,
		dllCharacteristicsOffset: dllCharOffset,
	}, nil
}

// VAToOffset converts a virtual address in image space to an offset into
// the in-memory buffer, following the original's VaToOffset formula:
// base + ((va - imageBase - firstSectionVA) + firstSectionRawPtr).
func (v *View) VAToOffset(va uint32) int {
	return int((va - v.ImageBase - v.FirstSectionVA) + v.FirstSectionRaw)
}

// OffsetToVA is the inverse of VAToOffset: reports the image-space address
// code at a given buffer offset will execute from once loaded, following
// the original's CalculateRealAddress (codeBase + (offset - firstRawPtr)).
func (v *View) OffsetToVA(offset int) uint32 {
	return v.CodeBase + (uint32(offset) - v.FirstSectionRaw)
}

// CodeSection returns the raw bytes of the first section and its buffer
// offset, the region every scan in pkg/analyzer and pkg/signatures runs
// over.
func (v *View) CodeSection() (data []byte, offset int) {
	off := int(v.FirstSectionRaw)
	end := off + int(v.FirstSectionSize)
	if end > len(v.Data) {
		end = len(v.Data)
	}
	if off > len(v.Data) {
		off = len(v.Data)
	}
	return v.Data[off:end], off
}

// ASLREnabled reports whether IMAGE_DLLCHARACTERISTICS_DYNAMIC_BASE is set.
func (v *View) ASLREnabled() bool {
	dc := v.readDllCharacteristics()
	return dc&dllCharacteristicsDynamicBase != 0
}

// ClearASLRFlag clears IMAGE_DLLCHARACTERISTICS_DYNAMIC_BASE in place. No
// library in this module's dependency set serializes PE headers back to
// bytes, so the two-byte field is patched directly at its known header
// offset.
func (v *View) ClearASLRFlag() {
	off := v.dllCharacteristicsOffset
	if off < 0 || int(off)+2 > len(v.Data) {
		return
	}
	dc := v.readDllCharacteristics()
	dc &^= dllCharacteristicsDynamicBase
	v.Data[off] = byte(dc)
	v.Data[off+1] = byte(dc >> 8)
}

func (v *View) readDllCharacteristics() uint16 {
	off := v.dllCharacteristicsOffset
	if off < 0 || int(off)+2 > len(v.Data) {
		return 0
	}
	return uint16(v.Data[off]) | uint16(v.Data[off+1])<<8
}

// readerAt adapts a byte slice to io.ReaderAt for pe.NewFile.
type readerAt struct{ b []byte }

func newReaderAt(b []byte) *readerAt { return &readerAt{b} }

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
