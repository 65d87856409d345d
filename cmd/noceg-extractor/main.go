//go:build windows && 386

// Command noceg-extractor is built as a shared library
// (go build -buildmode=c-shared) that takes the place of the original
// Steam API DLL beside the protected executable. On load it installs the
// extraction state machine and forwards every real export through to the
// renamed original library.
package main

// #include <stdint.h>
import "C"

import (
	"log"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/sysfce2/noceg/pkg/proxy"
	"github.com/sysfce2/noceg/pkg/restart"
	"github.com/sysfce2/noceg/pkg/veh"
	"github.com/sysfce2/noceg/pkg/wincall"
)

func init() {
	restart.AwaitPriorInstance()

	exePath, err := os.Executable()
	if err != nil {
		return
	}
	recipePath := filepath.Join(filepath.Dir(exePath), "noceg.json")

	logFile, err := os.OpenFile(filepath.Join(filepath.Dir(exePath), "noceg.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	var logger *log.Logger
	if err == nil {
		logger = log.New(logFile, "", log.LstdFlags)
	}

	state := &veh.State{
		RecipePath: recipePath,
		ExePath:    exePath,
		Logger:     logger,
	}

	if err := veh.Install(state); err != nil {
		if logger != nil {
			logger.Printf("install failed: %v", err)
		}
		return
	}
	if err := state.Initialize(); err != nil {
		if logger != nil {
			logger.Printf("initialize failed: %v", err)
		}
	}
}

func forwardBool(name string) C.int {
	addr, err := proxy.Global().Resolve(name)
	if err != nil {
		return 0
	}
	if wincall.Call(addr) != 0 {
		return 1
	}
	return 0
}

func forwardUint32(name string, args ...uintptr) C.uint32_t {
	addr, err := proxy.Global().Resolve(name)
	if err != nil {
		return 0
	}
	return C.uint32_t(wincall.Call(addr, args...))
}

func forwardUint64(name string, args ...uintptr) C.uint64_t {
	addr, err := proxy.Global().Resolve(name)
	if err != nil {
		return 0
	}
	return C.uint64_t(wincall.Call(addr, args...))
}

func forwardPtr(name string, args ...uintptr) unsafe.Pointer {
	addr, err := proxy.Global().Resolve(name)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(wincall.Call(addr, args...))
}

func forwardVoid(name string, args ...uintptr) {
	addr, err := proxy.Global().Resolve(name)
	if err != nil {
		return
	}
	wincall.Call(addr, args...)
}

//export SteamAPI_GetHSteamPipe
func SteamAPI_GetHSteamPipe() C.uint32_t { return forwardUint32("SteamAPI_GetHSteamPipe") }

//export SteamAPI_GetHSteamUser
func SteamAPI_GetHSteamUser() C.uint32_t { return forwardUint32("SteamAPI_GetHSteamUser") }

//export SteamAPI_Init
func SteamAPI_Init() C.int { return forwardBool("SteamAPI_Init") }

//export SteamAPI_InitSafe
func SteamAPI_InitSafe() C.int { return forwardBool("SteamAPI_InitSafe") }

//export SteamAPI_IsSteamRunning
func SteamAPI_IsSteamRunning() C.int { return forwardBool("SteamAPI_IsSteamRunning") }

//export SteamAPI_Shutdown
func SteamAPI_Shutdown() { forwardVoid("SteamAPI_Shutdown") }

//export SteamAPI_RunCallbacks
func SteamAPI_RunCallbacks() { forwardVoid("SteamAPI_RunCallbacks") }

//export SteamAPI_RestartAppIfNecessary
func SteamAPI_RestartAppIfNecessary(unOwnAppID C.uint32_t) C.int {
	addr, err := proxy.Global().Resolve("SteamAPI_RestartAppIfNecessary")
	if err != nil {
		return 0
	}
	if wincall.Call(addr, uintptr(unOwnAppID)) != 0 {
		return 1
	}
	return 0
}

//export SteamAPI_SetMiniDumpComment
func SteamAPI_SetMiniDumpComment(pchMsg *C.char) {
	forwardVoid("SteamAPI_SetMiniDumpComment", uintptr(unsafe.Pointer(pchMsg)))
}

//export SteamAPI_WriteMiniDump
func SteamAPI_WriteMiniDump(uStructuredExceptionCode C.uint32_t, pvExceptionInfo unsafe.Pointer, uBuildID C.uint32_t) {
	forwardVoid("SteamAPI_WriteMiniDump", uintptr(uStructuredExceptionCode), uintptr(pvExceptionInfo), uintptr(uBuildID))
}

//export SteamAPI_RegisterCallback
func SteamAPI_RegisterCallback(pCallback unsafe.Pointer, iCallback C.int) {
	forwardVoid("SteamAPI_RegisterCallback", uintptr(pCallback), uintptr(iCallback))
}

//export SteamAPI_UnregisterCallback
func SteamAPI_UnregisterCallback(pCallback unsafe.Pointer) {
	forwardVoid("SteamAPI_UnregisterCallback", uintptr(pCallback))
}

//export SteamAPI_RegisterCallResult
func SteamAPI_RegisterCallResult(pCallback unsafe.Pointer, hAPICall C.uint64_t) {
	forwardVoid("SteamAPI_RegisterCallResult", uintptr(pCallback), uintptr(hAPICall))
}

//export SteamAPI_UnregisterCallResult
func SteamAPI_UnregisterCallResult(pCallback unsafe.Pointer, hAPICall C.uint64_t) {
	forwardVoid("SteamAPI_UnregisterCallResult", uintptr(pCallback), uintptr(hAPICall))
}

//export SteamClient
func SteamClient() unsafe.Pointer { return forwardPtr("SteamClient") }

//export SteamUser
func SteamUser() unsafe.Pointer { return forwardPtr("SteamUser") }

//export SteamFriends
func SteamFriends() unsafe.Pointer { return forwardPtr("SteamFriends") }

//export SteamUtils
func SteamUtils() unsafe.Pointer { return forwardPtr("SteamUtils") }

//export SteamMasterServerUpdater
func SteamMasterServerUpdater() unsafe.Pointer { return forwardPtr("SteamMasterServerUpdater") }

//export SteamMatchmaking
func SteamMatchmaking() unsafe.Pointer { return forwardPtr("SteamMatchmaking") }

//export SteamMatchmakingServers
func SteamMatchmakingServers() unsafe.Pointer { return forwardPtr("SteamMatchmakingServers") }

//export SteamUserStats
func SteamUserStats() unsafe.Pointer { return forwardPtr("SteamUserStats") }

//export SteamApps
func SteamApps() unsafe.Pointer { return forwardPtr("SteamApps") }

//export SteamNetworking
func SteamNetworking() unsafe.Pointer { return forwardPtr("SteamNetworking") }

//export SteamRemoteStorage
func SteamRemoteStorage() unsafe.Pointer { return forwardPtr("SteamRemoteStorage") }

//export SteamScreenshots
func SteamScreenshots() unsafe.Pointer { return forwardPtr("SteamScreenshots") }

//export SteamGameServer
func SteamGameServer() unsafe.Pointer { return forwardPtr("SteamGameServer") }

//export SteamGameServerNetworking
func SteamGameServerNetworking() unsafe.Pointer { return forwardPtr("SteamGameServerNetworking") }

//export SteamGameServerUtils
func SteamGameServerUtils() unsafe.Pointer { return forwardPtr("SteamGameServerUtils") }

//export SteamGameServer_BSecure
func SteamGameServer_BSecure() C.int { return forwardBool("SteamGameServer_BSecure") }

//export SteamGameServer_GetSteamID
func SteamGameServer_GetSteamID() C.uint64_t { return forwardUint64("SteamGameServer_GetSteamID") }

//export SteamGameServer_Init
func SteamGameServer_Init(unIP C.uint32_t, usSteamPort, usGamePort, usQueryPort C.uint16_t, eServerMode C.int, pchVersionString *C.char) C.int {
	addr, err := proxy.Global().Resolve("SteamGameServer_Init")
	if err != nil {
		return 0
	}
	r := wincall.Call(addr,
		uintptr(unIP), uintptr(usSteamPort), uintptr(usGamePort), uintptr(usQueryPort),
		uintptr(eServerMode), uintptr(unsafe.Pointer(pchVersionString)))
	if r != 0 {
		return 1
	}
	return 0
}

//export SteamGameServer_Shutdown
func SteamGameServer_Shutdown() { forwardVoid("SteamGameServer_Shutdown") }

//export SteamGameServer_RunCallbacks
func SteamGameServer_RunCallbacks() { forwardVoid("SteamGameServer_RunCallbacks") }

//export SteamGameServerStats
func SteamGameServerStats() unsafe.Pointer { return forwardPtr("SteamGameServerStats") }

func main() {}
