//go:build windows && 386

// Package veh defines the i386 CONTEXT/EXCEPTION_POINTERS layout and wires
// a vectored exception handler over it. golang.org/x/sys/windows does not
// wrap AddVectoredExceptionHandler or define the 32-bit CONTEXT record, so
// both are defined here directly against the documented WinAPI layout —
// the same approach other_examples/carved4-go-maldev__pe.go takes for the
// amd64 CONTEXT, adapted field-for-field to i386 (no pack example targets
// windows/386 VEH directly).
package veh

// FloatingSaveArea mirrors FLOATING_SAVE_AREA.
type FloatingSaveArea struct {
	ControlWord   uint32
	StatusWord    uint32
	TagWord       uint32
	ErrorOffset   uint32
	ErrorSelector uint32
	DataOffset    uint32
	DataSelector  uint32
	RegisterArea  [80]byte
	Cr0NpxState   uint32
}

// Context mirrors the 32-bit CONTEXT record exactly, field for field.
type Context struct {
	ContextFlags uint32
	Dr0          uint32
	Dr1          uint32
	Dr2          uint32
	Dr3          uint32
	Dr6          uint32
	Dr7          uint32
	FloatSave    FloatingSaveArea
	SegGs        uint32
	SegFs        uint32
	SegEs        uint32
	SegDs        uint32
	Edi          uint32
	Esi          uint32
	Ebx          uint32
	Edx          uint32
	Ecx          uint32
	Eax          uint32
	Ebp          uint32
	Eip          uint32
	SegCs        uint32
	EFlags       uint32
	Esp          uint32
	SegSs        uint32
	ExtendedRegisters [512]byte
}

// ExceptionRecord mirrors EXCEPTION_RECORD.
type ExceptionRecord struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecordNext  uintptr
	ExceptionAddress     uintptr
	NumberParameters     uint32
	ExceptionInformation [15]uintptr
}

// ExceptionPointers mirrors EXCEPTION_POINTERS.
type ExceptionPointers struct {
	ExceptionRecord *ExceptionRecord
	ContextRecord   *Context
}

// Exception disposition return codes for a vectored exception handler.
const (
	ExceptionContinueExecution = 0xFFFFFFFF // -1 as int32
	ExceptionContinueSearch    = 0
)

// Trap flag bit in EFlags (single-step).
const trapFlag = 0x100

// Well-known Windows exception codes this handler switches on.
const (
	exceptionSingleStep         = 0x80000004
	exceptionBreakpoint         = 0x80000003
	exceptionIllegalInstruction = 0xC000001D
)

// CustomExceptionCode is the software exception the extractor raises to
// hand control to its own handler. spec.md's Open Question about the
// 0xDEADDEAD/0xCEADDEAD mismatch is resolved by using this single value at
// both the raise site and the handler check (SPEC_FULL.md §4.5/§9).
const CustomExceptionCode = 0xCEADDEAD
