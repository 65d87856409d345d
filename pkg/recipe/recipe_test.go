package recipe

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUpdateEntryFormatsUppercase(t *testing.T) {
	r := &Recipe{}
	r.AddEntry("0x0040100B", Entry{Prologue: "0x0040100B", EIP: "0x00401000", BP: "0x00401033", Value: UnfilledValue, Type: 1})

	if err := r.UpdateEntry(0, 0xDEADBEEF); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	_, e, ok := r.Func(0)
	if !ok {
		t.Fatal("entry 0 missing")
	}
	if e.Value != "0xDEADBEEF" {
		t.Fatalf("Value = %q, want 0xDEADBEEF", e.Value)
	}
}

func TestUpdateEntryOutOfRange(t *testing.T) {
	r := &Recipe{}
	if err := r.UpdateEntry(0, 1); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noceg.json")

	want := &Recipe{
		Init:           "0x00401500",
		RegisterThread: "0x00401600",
		Terminate:      "0x00401700",
		Version:        2,
		ShouldRestart:  false,
		Integrity:      []string{"0x00401800"},
		TestSecret:     []string{"0x00401900"},
	}
	want.AddEntry("0x0040100B", Entry{Prologue: "0x0040100B", EIP: "0x00401000", BP: "0x00401033", Value: UnfilledValue, Type: 1})

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "noceg.json" {
			t.Fatalf("stray temp file left behind: %s", e.Name())
		}
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Init != want.Init || got.Version != want.Version || got.Len() != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/noceg.json"); err == nil {
		t.Fatal("expected error loading missing file")
	}
}
