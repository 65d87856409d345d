//go:build windows

// Package proxy forwards the protected module's real exports through to the
// original, unprotected dynamic library sitting beside it on disk, the way
// the host application already expects to call them.
package proxy

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// Wrapper loads one original dynamic library once and caches resolved
// export addresses by name, mirroring DllWrapper's GetFunction cache.
type Wrapper struct {
	mu   sync.Mutex
	path string

	handle windows.Handle
	cache  map[string]uintptr
}

// NewWrapper loads originalPath immediately, matching DllWrapper's
// constructor-time LoadOriginalDll call. A load failure is not fatal here:
// every later Resolve call simply reports ErrNotLoaded, letting the export
// stub return a zero value instead of calling through and crashing the host.
func NewWrapper(originalPath string) *Wrapper {
	w := &Wrapper{path: originalPath, cache: map[string]uintptr{}}
	h, err := windows.LoadLibrary(originalPath)
	if err == nil {
		w.handle = h
	}
	return w
}

var ErrNotLoaded = fmt.Errorf("proxy: original library failed to load")

// Resolve returns the address of name inside the wrapped library, resolving
// and caching it on first use.
func (w *Wrapper) Resolve(name string) (uintptr, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if addr, ok := w.cache[name]; ok {
		return addr, nil
	}
	if w.handle == 0 {
		return 0, ErrNotLoaded
	}

	addr, err := windows.GetProcAddress(w.handle, name)
	if err != nil {
		return 0, fmt.Errorf("proxy: %s not found: %w", name, err)
	}
	w.cache[name] = addr
	return addr, nil
}

// Close releases the wrapped library, mirroring DllWrapper's destructor.
func (w *Wrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handle == 0 {
		return nil
	}
	h := w.handle
	w.handle = 0
	return windows.FreeLibrary(h)
}

var (
	instance *Wrapper
	once     sync.Once
)

// Global returns the process-wide wrapper around the renamed original
// library, creating it on first use with the conventional
// steam_api_org.dll/steam_api.dll pairing SteamAPIWrapper defaults to.
func Global() *Wrapper {
	once.Do(func() {
		instance = NewWrapper("steam_api_org.dll")
	})
	return instance
}
