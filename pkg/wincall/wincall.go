//go:build windows

// Package wincall invokes raw function-pointer addresses — the protection's
// Init and RegisterThread anchors, read from the recipe as plain addresses
// rather than resolved by name.
package wincall

import "syscall"

// Call invokes the function at addr with the given stdcall arguments and
// returns its primary return value. The teacher's own pkg/wincall exposes
// the same Call(proc uintptr, args ...uintptr) shape backed by a hand-written
// assembly trampoline; that trampoline's source file was not present in the
// retrieval pack, so this adapts the same signature onto syscall.SyscallN,
// the stdlib primitive such trampolines are built on top of (see DESIGN.md).
func Call(addr uintptr, args ...uintptr) uintptr {
	r1, _, _ := syscall.SyscallN(addr, args...)
	return r1
}

// CallBool invokes a zero-argument bool(*)() function pointer, as used for
// the protection's Init and RegisterThread anchors, and reports whether it
// returned a non-zero (truthy) value.
func CallBool(addr uintptr) bool {
	return Call(addr) != 0
}
