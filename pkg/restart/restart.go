//go:build windows

// Package restart coordinates the extractor's self-restart: a single
// system-wide named mutex stands in for the original's CEG_RESTART_MUTEX,
// preventing two copies of the host process from restarting each other in
// a loop.
package restart

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/windows"
)

// mutexName is the system-wide mutex (Global\ namespace, visible from every
// session) the original guards its self-restart with.
const mutexName = `Global\NoCEG`

var (
	ErrMutexBusy   = fmt.Errorf("restart: mutex already held")
	ErrMutexCreate = fmt.Errorf("restart: CreateMutex failed")
	ErrSpawnFailed = fmt.Errorf("restart: failed to spawn successor process")
)

// AcquireAndRestart tries to acquire the global restart mutex without
// blocking, and if successful spawns a fresh copy of exePath before
// releasing it. Mirrors ProcessManager::SelfRestart: a failed non-blocking
// acquire means another instance is already restarting, so nothing is
// spawned and ErrMutexBusy is returned.
func AcquireAndRestart(exePath string) error {
	namePtr, err := windows.UTF16PtrFromString(mutexName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMutexCreate, err)
	}

	handle, err := windows.CreateMutex(nil, false, namePtr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMutexCreate, err)
	}
	defer windows.CloseHandle(handle)

	event, err := windows.WaitForSingleObject(handle, 0)
	if err != nil || event != windows.WAIT_OBJECT_0 {
		return ErrMutexBusy
	}
	defer windows.ReleaseMutex(handle)

	cmd := exec.Command(exePath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	return nil
}

// AwaitPriorInstance blocks until the global restart mutex is either absent
// or released, then returns. Mirrors ProcessManager::GetCEGMutex: a process
// that starts up while a restart is still in flight waits for it to finish
// rather than racing it.
func AwaitPriorInstance() {
	namePtr, err := windows.UTF16PtrFromString(mutexName)
	if err != nil {
		return
	}

	handle, err := windows.OpenMutex(windows.SYNCHRONIZE, false, namePtr)
	if err != nil {
		// ERROR_FILE_NOT_FOUND (no such mutex) means no prior instance is
		// mid-restart; nothing to wait for.
		return
	}
	defer windows.CloseHandle(handle)

	windows.WaitForSingleObject(handle, windows.INFINITE)
	windows.ReleaseMutex(handle)
}
