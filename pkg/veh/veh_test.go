//go:build windows && 386

package veh

import "testing"

// restoreAndAdvance is the shared recovery step the breakpoint-hit branch
// falls back to whether the capture succeeded or the recipe write failed
// (pkg/veh/veh.go); it must always reapply the saved pre-jump context
// rather than leaving a failed update's CONTEXT untouched.
func TestRestoreAndAdvanceRestoresContextAndAdvancesIndex(t *testing.T) {
	s := &State{
		currentIndex: 3,
		savedContext: Context{Eax: 0xAABBCCDD, Eip: 0x00401000, Esp: 0x0012FF00},
	}
	ctx := &Context{Eax: 0, Eip: 0xDEADBEEF, Esp: 0}

	s.restoreAndAdvance(ctx)

	if *ctx != s.savedContext {
		t.Fatalf("ctx = %+v, want %+v", *ctx, s.savedContext)
	}
	if s.currentIndex != 4 {
		t.Fatalf("currentIndex = %d, want 4", s.currentIndex)
	}
}
