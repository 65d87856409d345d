//go:build windows && 386

package veh

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/windows"

	"github.com/sysfce2/noceg/pkg/breakpoint"
	"github.com/sysfce2/noceg/pkg/recipe"
	"github.com/sysfce2/noceg/pkg/restart"
	"github.com/sysfce2/noceg/pkg/wincall"
)

var (
	kernel32                        = windows.NewLazySystemDLL("kernel32.dll")
	procAddVectoredExceptionHandler = kernel32.NewProc("AddVectoredExceptionHandler")
	procRaiseException              = kernel32.NewProc("RaiseException")
)

var (
	ErrInitFunctionNotFound           = fmt.Errorf("veh: Init function not found")
	ErrRegisterThreadFunctionNotFound = fmt.Errorf("veh: RegisterThread function not found")
)

// State is the single process-wide extractor instance the exception
// handler dispatches against. Per spec.md §9's singleton guidance, it is
// exposed through a single once-initialized pointer rather than ambient
// mutable package state scattered across files.
type State struct {
	mu sync.Mutex

	RecipePath string
	Recipe     *recipe.Recipe
	ExePath    string
	Logger     *log.Logger

	BP breakpoint.Manager

	targetAddress         uintptr
	eipAddress            uintptr
	currentIndex          int
	registerThreadAddress uintptr
	shouldRestart         bool
	savedContext          Context
	hasSavedContext       bool
}

var (
	instance     *State
	instanceOnce sync.Once
)

// Install registers s as the process-wide extractor state and installs a
// head-of-chain vectored exception handler over it. Safe to call only once
// per process; subsequent calls are no-ops.
func Install(s *State) error {
	var installErr error
	instanceOnce.Do(func() {
		instance = s
		cb := windows.NewCallback(handlerTrampoline)
		r, _, _ := procAddVectoredExceptionHandler.Call(1, cb)
		if r == 0 {
			installErr = fmt.Errorf("veh: AddVectoredExceptionHandler failed")
		}
	})
	return installErr
}

func handlerTrampoline(ei *ExceptionPointers) uintptr {
	if instance == nil {
		return ExceptionContinueSearch
	}
	return instance.handle(ei)
}

// handle implements the exception-code state machine of spec.md §4.5.
func (s *State) handle(ei *ExceptionPointers) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := ei.ContextRecord
	switch ei.ExceptionRecord.ExceptionCode {
	case CustomExceptionCode:
		s.savedContext = *ctx
		s.hasSavedContext = true
		ctx.Eip = uint32(s.eipAddress)
		ctx.EFlags |= trapFlag
		return ExceptionContinueExecution

	case exceptionSingleStep:
		if uintptr(ctx.Eip) == s.targetAddress {
			ctx.EFlags &^= trapFlag
		}
		return ExceptionContinueExecution

	case exceptionBreakpoint:
		if uintptr(ctx.Eip) != s.BP.Address() {
			return ExceptionContinueSearch
		}
		s.BP.Disarm()
		eax := ctx.Eax
		s.logf("captured eax=0x%08X at index %d", eax, s.currentIndex)

		if err := s.Recipe.UpdateEntry(s.currentIndex, eax); err != nil {
			s.logf("update entry failed: %v", err)
			s.restoreAndAdvance(ctx)
			s.processEntry()
			return ExceptionContinueExecution
		}
		if err := recipe.Save(s.RecipePath, s.Recipe); err != nil {
			s.logf("save recipe failed: %v", err)
			s.restoreAndAdvance(ctx)
			s.processEntry()
			return ExceptionContinueExecution
		}

		if s.Recipe.ShouldRestart {
			// The original redirects EIP to a helper routine that spawns a
			// fresh host process and exits. A Go runtime has no stable,
			// directly-jumpable machine address for that helper once
			// control is handed back through CONTEXT — so the restart is
			// performed synchronously here instead. Restarting is only
			// fatal to this run if it actually succeeds in spawning a
			// successor; a busy or failed mutex leaves this process the
			// only one extracting, so it logs and falls through to keep
			// going rather than exiting with extraction incomplete.
			if err := restart.AcquireAndRestart(s.ExePath); err != nil {
				s.logf("self-restart failed: %v", err)
			} else {
				s.shouldRestart = true
				os.Exit(0)
			}
		}

		s.restoreAndAdvance(ctx)
		s.processEntry()
		return ExceptionContinueExecution

	case exceptionIllegalInstruction:
		if s.shouldRestart {
			os.Exit(1)
		}
		return ExceptionContinueSearch

	default:
		return ExceptionContinueSearch
	}
}

// restoreAndAdvance reapplies the context captured at the custom-exception
// raise and moves on to the next recipe entry. Used on every path out of
// the breakpoint-hit branch — successful capture as well as a failed
// UpdateEntry/Save — so a recipe write failure is fatal only to that one
// entry, never to the saved register state the rest of the run depends on.
func (s *State) restoreAndAdvance(ctx *Context) {
	*ctx = s.savedContext
	s.currentIndex++
}

func (s *State) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

// Initialize loads the recipe, validates the Init/RegisterThread anchors,
// calls Init, and — if it returns truthy — begins the iteration loop.
func (s *State) Initialize() error {
	r, err := recipe.Load(s.RecipePath)
	if err != nil {
		return err
	}
	s.Recipe = r

	initAddr, err := parseHex32(r.Init)
	if err != nil || initAddr == 0 {
		return ErrInitFunctionNotFound
	}
	regAddr, err := parseHex32(r.RegisterThread)
	if err != nil || regAddr == 0 {
		return ErrRegisterThreadFunctionNotFound
	}
	s.registerThreadAddress = uintptr(regAddr)

	if ok := wincall.CallBool(uintptr(initAddr)); ok {
		s.processEntry()
	}
	return nil
}

// processEntry is the iteration loop of spec.md §4.5: scan forward from
// the current index for the first unextracted, valid entry, arm it, and
// raise the custom exception to hand off to the handler above.
func (s *State) processEntry() {
	for s.currentIndex < s.Recipe.Len() {
		funcVA, e, ok := s.Recipe.Func(s.currentIndex)
		if !ok || !validEntry(e) {
			s.currentIndex++
			continue
		}
		if e.Value != recipe.UnfilledValue {
			s.currentIndex++
			continue
		}

		funcAddr, err1 := parseHex32(funcVA)
		eipAddr, err2 := parseHex32(e.EIP)
		bpAddr, err3 := parseHex32(e.BP)
		if err1 != nil || err2 != nil || err3 != nil || funcAddr == 0 || eipAddr == 0 || bpAddr == 0 {
			s.logf("skipping invalid entry %d", s.currentIndex)
			s.currentIndex++
			continue
		}

		s.targetAddress = uintptr(funcAddr)
		s.eipAddress = uintptr(eipAddr)
		if err := s.BP.Arm(uintptr(bpAddr)); err != nil {
			s.logf("arm breakpoint failed: %v", err)
			s.currentIndex++
			continue
		}

		if e.Type != 2 { // not StolenV1: invoke RegisterThread first, every time
			if s.registerThreadAddress != 0 {
				wincall.CallBool(s.registerThreadAddress)
			}
		}
		raiseCustomException()
		return
	}

	s.logf("extraction complete")
	os.Exit(0)
}

func validEntry(e recipe.Entry) bool {
	return e.Prologue != "" && e.EIP != "" && e.BP != "" && e.Type >= 0 && e.Type <= 4
}

func raiseCustomException() {
	procRaiseException.Call(uintptr(CustomExceptionCode), 0, 0, 0)
}
