// Command noceg-patch rewrites a protected binary's extracted functions
// with direct-return or jump stubs, consuming the noceg.json recipe the
// Analyzer and Extractor have already filled in.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sysfce2/noceg/pkg/patcher"
	"github.com/sysfce2/noceg/pkg/peimage"
	"github.com/sysfce2/noceg/pkg/recipe"
)

func main() {
	log.SetFlags(0)
	fmt.Println("CEG patcher")
	fmt.Println()

	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: noceg-patch <ceg_binary>")
		os.Exit(1)
	}
	binPath := args[0]

	data, err := os.ReadFile(binPath)
	if err != nil {
		log.Fatalf("[ERROR] reading %q: %v", binPath, err)
	}
	view, err := peimage.Load(data)
	if err != nil {
		log.Fatalf("[ERROR] not a valid PE file: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("[ERROR] getwd: %v", err)
	}
	recipePath := filepath.Join(cwd, "noceg.json")
	r, err := recipe.Load(recipePath)
	if err != nil {
		log.Fatalf("[ERROR] cannot load %q: %v", recipePath, err)
	}

	plan := patcher.BuildPlan(r)
	if plan.Len() == 0 {
		log.Fatalf("[ERROR] no patches found in %q", recipePath)
	}

	applied, err := patcher.Apply(view, plan)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Printf("[SUCCESS] Total patches applied: %d", applied)

	outPath := patcher.OutputPath(binPath)
	if err := os.WriteFile(outPath, view.Data, 0o644); err != nil {
		log.Fatalf("[ERROR] cannot create %q: %v", outPath, err)
	}
	log.Printf("[SUCCESS] Saved the patched file as %q", outPath)
}
