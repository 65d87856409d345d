//go:build windows

// Package breakpoint implements the single software breakpoint primitive
// the extractor uses: for the instant of a one-byte write, flip the
// containing page to PAGE_EXECUTE_READWRITE, write the byte, flush the
// instruction cache, and restore the page's original protection before
// returning — the same scoped flip-write-restore shape as the original's
// function-scoped MemoryManager. At most one breakpoint is ever armed at a
// time.
package breakpoint

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func ptr(address uintptr) unsafe.Pointer { return unsafe.Pointer(address) }

// Manager owns the single live breakpoint. Its zero value is a valid,
// disarmed manager.
type Manager struct {
	armed      bool
	address    uintptr
	backupByte byte
}

// withWritableByte flips address's containing page to RWX, runs apply
// (which must touch only that one byte), flushes the instruction cache,
// and restores the page's original protection before returning — on every
// exit path, success or failure. If the cache flush fails, onFailure runs
// before the protection restore, while the page is still writable, so a
// caller can roll the byte back rather than leaving a stray write behind
// a page stuck open.
func withWritableByte(address uintptr, apply, onFailure func()) error {
	var oldProtect uint32
	if err := windows.VirtualProtect(address, 1, windows.PAGE_EXECUTE_READWRITE, &oldProtect); err != nil {
		return fmt.Errorf("breakpoint: VirtualProtect: %w", err)
	}

	apply()

	flushErr := flushOneByte(address)
	if flushErr != nil && onFailure != nil {
		onFailure()
	}

	var unused uint32
	restoreErr := windows.VirtualProtect(address, 1, oldProtect, &unused)

	switch {
	case flushErr != nil && restoreErr != nil:
		return fmt.Errorf("breakpoint: %w; restoring protection: %w", flushErr, restoreErr)
	case flushErr != nil:
		return fmt.Errorf("breakpoint: %w", flushErr)
	case restoreErr != nil:
		return fmt.Errorf("breakpoint: restoring protection: %w", restoreErr)
	}
	return nil
}

func flushOneByte(address uintptr) error {
	process, err := windows.GetCurrentProcess()
	if err != nil {
		return fmt.Errorf("GetCurrentProcess: %w", err)
	}
	if err := windows.FlushInstructionCache(process, ptr(address), 1); err != nil {
		return fmt.Errorf("FlushInstructionCache: %w", err)
	}
	return nil
}

// Arm saves the byte at address, writes 0xCC over it, and leaves the page
// at its original protection once the write lands. No-op if a breakpoint
// is already armed, matching memory.h's BreakpointManager.
func (m *Manager) Arm(address uintptr) error {
	if m.armed {
		return nil
	}

	var backup byte
	err := withWritableByte(address,
		func() {
			backup = *(*byte)(ptr(address))
			*(*byte)(ptr(address)) = 0xCC
		},
		func() {
			*(*byte)(ptr(address)) = backup
		},
	)
	if err != nil {
		return err
	}

	m.address = address
	m.backupByte = backup
	m.armed = true
	return nil
}

// Disarm restores the saved byte and leaves the page at its original
// protection once the write lands. No-op if no breakpoint is armed.
func (m *Manager) Disarm() error {
	if !m.armed {
		return nil
	}

	address, backup := m.address, m.backupByte
	err := withWritableByte(address,
		func() { *(*byte)(ptr(address)) = backup },
		nil,
	)
	if err != nil {
		return err
	}

	m.armed = false
	m.address = 0
	m.backupByte = 0
	return nil
}

// Address returns the currently armed address, or 0 if none.
func (m *Manager) Address() uintptr {
	if !m.armed {
		return 0
	}
	return m.address
}

// IsArmed reports whether a breakpoint is currently live.
func (m *Manager) IsArmed() bool { return m.armed }
