// Command noceg-analyze scans a protected 32-bit PE binary, locates its
// protection anchors and every protected function, classifies each one,
// and writes the resulting recipe as noceg.json beside the analyzer's own
// executable.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sysfce2/noceg/pkg/analyzer"
	"github.com/sysfce2/noceg/pkg/peimage"
	"github.com/sysfce2/noceg/pkg/recipe"
	"github.com/sysfce2/noceg/pkg/scanner"
	"github.com/sysfce2/noceg/pkg/signatures"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable verbose output")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: noceg-analyze [-verbose] <ceg_binary>")
		os.Exit(1)
	}
	binPath := args[0]

	data, err := os.ReadFile(binPath)
	if err != nil {
		log.Fatalf("[ERROR] reading %q: %v", binPath, err)
	}

	view, err := peimage.Load(data)
	if err != nil {
		log.Fatalf("[ERROR] loading PE: %v", err)
	}

	code, codeOff := view.CodeSection()
	codeRegion := scanner.Region{Base: uint32(codeOff), Data: code}

	legacy := isLegacy(view)
	if legacy {
		log.Println("[WARNING] Older CEG version found.")
	}

	initAddr, ok := findFirstOfNames(codeRegion, signatures.InitFunctionPatterns)
	if !ok {
		log.Fatal("[ERROR] CEG init function not found.")
	}
	log.Printf("[SUCCESS] Found CEG init function: 0x%08X", view.OffsetToVA(int(initAddr)))

	termAddr, ok := findFirstOfNames(codeRegion, signatures.TerminateFunctionPatterns)
	if !ok {
		log.Fatal("[ERROR] CEG terminate function not found.")
	}
	log.Printf("[SUCCESS] Found CEG terminate function: 0x%08X", view.OffsetToVA(int(termAddr)))

	registerThreadCandidates := findAllAsSet(codeRegion, signatures.RegisterThreadPatterns)
	protectedFuncs := findAllAsSet(codeRegion, signatures.ProtectedFunctionPatterns)

	result := analyzer.Analyze(view, protectedFuncs, registerThreadCandidates, legacy)
	if *verbose {
		log.Printf("[INFO] classified %d protected functions", len(result.Records))
	}
	printVariantCounts(result.Records)

	var registerThreadAddr uint32
	if result.RegisterThreadAddr != 0 {
		registerThreadAddr = view.OffsetToVA(int(result.RegisterThreadAddr))
		log.Printf("[SUCCESS] Found CEG register thread function: 0x%08X", registerThreadAddr)
	}

	integrityFuncs := findAllAsSlice(codeRegion, signatures.IntegrityPatterns)
	if len(integrityFuncs) > 0 {
		log.Printf("[SUCCESS] Found CEG integrity functions: %d", len(integrityFuncs))
	}
	testSecretFuncs := findAllAsSlice(codeRegion, signatures.TestSecretPatterns)
	if len(testSecretFuncs) > 0 {
		log.Printf("[SUCCESS] Found CEG test secret functions: %d", len(testSecretFuncs))
	}

	r := buildRecipe(view, result.Records, registerThreadAddr, view.OffsetToVA(int(initAddr)), view.OffsetToVA(int(termAddr)), integrityFuncs, testSecretFuncs, legacy)

	self, err := os.Executable()
	if err != nil {
		log.Fatalf("[ERROR] locating own executable: %v", err)
	}
	recipePath := filepath.Join(filepath.Dir(self), "noceg.json")
	if err := recipe.Save(recipePath, r); err != nil {
		log.Fatalf("[ERROR] writing recipe: %v", err)
	}
	log.Printf("[SUCCESS] Wrote %s", recipePath)

	if view.ASLREnabled() {
		view.ClearASLRFlag()
		noASLRPath := noASLRSibling(binPath)
		if err := os.WriteFile(noASLRPath, view.Data, 0o644); err != nil {
			log.Fatalf("[ERROR] writing %q: %v", noASLRPath, err)
		}
		log.Printf("[SUCCESS] Successfully disabled ASLR, saved %s", noASLRPath)
	}
}

// isLegacy reports whether the 11-byte legacy flag sequence appears in the
// first LegacyFlagScanWindow bytes of the code section.
func isLegacy(v *peimage.View) bool {
	code, codeOff := v.CodeSection()
	end := signatures.LegacyFlagScanWindow
	if end > len(code) {
		end = len(code)
	}
	region := scanner.Region{Base: uint32(codeOff), Data: code[:end]}
	_, found := scanner.FindFirst(scanner.Compile(signatures.LegacyFlagPattern), region)
	return found
}

func findFirstOfNames(region scanner.Region, patterns []string) (uint32, bool) {
	compiled := make([]scanner.Pattern, len(patterns))
	for i, p := range patterns {
		compiled[i] = scanner.Compile(p)
	}
	addr, _, ok := scanner.FindFirstOf(compiled, region)
	return addr, ok
}

func findAllAsSet(region scanner.Region, patterns []string) map[uint32]bool {
	set := map[uint32]bool{}
	for _, p := range patterns {
		for _, addr := range scanner.FindAll(scanner.Compile(p), region) {
			set[addr] = true
		}
	}
	return set
}

func findAllAsSlice(region scanner.Region, patterns []string) []uint32 {
	seen := map[uint32]bool{}
	var out []uint32
	for _, p := range patterns {
		for _, addr := range scanner.FindAll(scanner.Compile(p), region) {
			if !seen[addr] {
				seen[addr] = true
				out = append(out, addr)
			}
		}
	}
	return out
}

func printVariantCounts(records []analyzer.Record) {
	counts := map[analyzer.Variant]int{}
	for _, r := range records {
		counts[r.Variant]++
	}
	for _, v := range []analyzer.Variant{analyzer.ConstantV2, analyzer.StolenV1, analyzer.StolenV2, analyzer.StolenV3} {
		if counts[v] > 0 {
			log.Printf("[SUCCESS] Found CEG protected %s functions: %d", v, counts[v])
		}
	}
}

// buildRecipe assembles the recipe document, grouping ConstantOrStolen
// entries by variant Type (1..4) in that order, matching the original
// writer's fixed call sequence of add_protected_funcs.
func buildRecipe(v *peimage.View, records []analyzer.Record, registerThreadAddr, initAddr, termAddr uint32, integrity, testSecret []uint32, legacy bool) *recipe.Recipe {
	r := &recipe.Recipe{
		Init:           fmt.Sprintf("0x%08X", initAddr),
		RegisterThread: fmt.Sprintf("0x%08X", registerThreadAddr),
		Terminate:      fmt.Sprintf("0x%08X", termAddr),
		Version:        2,
		ShouldRestart:  false,
	}
	if legacy {
		r.Version = 1
	}

	byVariant := map[analyzer.Variant][]analyzer.Record{}
	for _, rec := range records {
		byVariant[rec.Variant] = append(byVariant[rec.Variant], rec)
	}
	for _, variant := range []analyzer.Variant{analyzer.ConstantV2, analyzer.StolenV1, analyzer.StolenV2, analyzer.StolenV3} {
		for _, rec := range byVariant[variant] {
			r.AddEntry(fmt.Sprintf("0x%08X", v.OffsetToVA(int(rec.Func))), recipe.Entry{
				Prologue: fmt.Sprintf("0x%08X", v.OffsetToVA(int(rec.Prologue))),
				EIP:      fmt.Sprintf("0x%08X", v.OffsetToVA(int(rec.EIP))),
				BP:       fmt.Sprintf("0x%08X", v.OffsetToVA(int(rec.BP))),
				Value:    recipe.UnfilledValue,
				Type:     variant.Type(),
			})
		}
	}

	for _, addr := range integrity {
		r.Integrity = append(r.Integrity, fmt.Sprintf("0x%08X", v.OffsetToVA(int(addr))))
	}
	for _, addr := range testSecret {
		r.TestSecret = append(r.TestSecret, fmt.Sprintf("0x%08X", v.OffsetToVA(int(addr))))
	}

	return r
}

func noASLRSibling(path string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := filepath.Base(path)
	stem = stem[:len(stem)-len(ext)]
	return filepath.Join(dir, stem+"_noaslr"+ext)
}
