// Package patcher rewrites a protected binary's extracted functions in
// place so they no longer need the Extractor at runtime: every recorded
// function prologue is overwritten with a short stub that reproduces the
// effect the Extractor would otherwise observe at runtime.
package patcher

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/sysfce2/noceg/pkg/peimage"
	"github.com/sysfce2/noceg/pkg/recipe"
)

var (
	ErrNoPatches   = fmt.Errorf("patcher: no patches resolved from recipe")
	ErrNoneApplied = fmt.Errorf("patcher: no patches could be applied")
	ErrBadAddress  = fmt.Errorf("patcher: address below image base or unmapped")
)

// Patch is one resolved instruction-replacement site, gathered from the
// recipe's Init/Terminate/ConstantOrStolen/Integrity/TestSecret fields.
type Patch struct {
	Prologue string
	Type     int
	Value    string
}

// Plan is the set of patches to apply to one image, keyed by prologue
// address the way the original keys its patches map — a duplicate prologue
// keeps the first entry seen and ignores the rest, matching
// map::try_emplace's first-wins semantics.
type Plan struct {
	patches map[string]Patch
	order   []string
}

// BuildPlan gathers every address the recipe names into patch sites.
// Init and Terminate are always synthesized as Type 0 (the protection's
// "always succeeded" stub), regardless of what a caller might otherwise
// expect from their runtime behavior — the patched binary no longer calls
// through to a protection host at all, so both anchors collapse to the
// same unconditional-success return. Init and Terminate are added first,
// so if a ConstantOrStolen/Integrity/TestSecret entry shares an address
// with either of them, the Type-0 stub wins rather than being overwritten.
func BuildPlan(r *recipe.Recipe) *Plan {
	p := &Plan{patches: map[string]Patch{}}

	add := func(addr string, patch Patch) {
		if addr == "" {
			return
		}
		if _, exists := p.patches[addr]; exists {
			return
		}
		p.order = append(p.order, addr)
		p.patches[addr] = patch
	}

	if r.Init != "" {
		add(r.Init, Patch{Prologue: r.Init, Type: 0})
	}
	if r.Terminate != "" {
		add(r.Terminate, Patch{Prologue: r.Terminate, Type: 0})
	}

	for i := 0; i < r.Len(); i++ {
		_, e, ok := r.Func(i)
		if !ok || e.Prologue == "" || e.Type < 0 || e.Type > 4 {
			continue
		}
		add(e.Prologue, Patch{Prologue: e.Prologue, Type: e.Type, Value: e.Value})
	}

	for _, addr := range r.Integrity {
		add(addr, Patch{Prologue: addr, Type: 0})
	}
	for _, addr := range r.TestSecret {
		add(addr, Patch{Prologue: addr, Type: 0})
	}

	return p
}

// Len reports the number of distinct patch sites in the plan.
func (p *Plan) Len() int { return len(p.order) }

// Apply writes every patch in the plan into view's underlying file image,
// returning the number of patches successfully applied. An individual
// patch that resolves to an out-of-range or unmapped address is skipped
// rather than aborting the whole run, matching the original's per-patch
// try/continue loop.
func Apply(v *peimage.View, p *Plan) (int, error) {
	if p.Len() == 0 {
		return 0, ErrNoPatches
	}

	applied := 0
	for _, addr := range p.order {
		patch := p.patches[addr]
		if err := applyOne(v, patch); err != nil {
			continue
		}
		applied++
	}
	if applied == 0 {
		return 0, ErrNoneApplied
	}
	return applied, nil
}

func applyOne(v *peimage.View, patch Patch) error {
	prologue, err := parseHex32(patch.Prologue)
	if err != nil {
		return err
	}
	if prologue < v.ImageBase {
		return ErrBadAddress
	}
	offset := v.VAToOffset(prologue)
	if offset < 0 || offset+5 > len(v.Data) {
		return ErrBadAddress
	}

	switch patch.Type {
	case 0:
		// mov al, 1 ; ret — the protection's unconditional "succeeded" stub.
		v.Data[offset] = 0xB0
		v.Data[offset+1] = 0x01
		v.Data[offset+2] = 0xC3

	case 1, 2, 3:
		// mov eax, <value> ; ret — return the fixed value recovered at runtime.
		if offset+6 > len(v.Data) {
			return ErrBadAddress
		}
		val, err := parseHex32(patch.Value)
		if err != nil {
			return err
		}
		v.Data[offset] = 0xB8
		binary.LittleEndian.PutUint32(v.Data[offset+1:offset+5], val)
		v.Data[offset+5] = 0xC3

	case 4:
		// jmp <dest> — redirect to the stolen code's real continuation.
		dest, err := parseHex32(patch.Value)
		if err != nil {
			return err
		}
		rel := int32(dest - (prologue + 5))
		v.Data[offset] = 0xE9
		binary.LittleEndian.PutUint32(v.Data[offset+1:offset+5], uint32(rel))

	default:
		return fmt.Errorf("patcher: unknown patch type %d", patch.Type)
	}
	return nil
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

// OutputPath derives the patched file's name the way the original does —
// the input's stem with "_noceg" appended, keeping its original extension —
// but places it beside the input, where the original used the current
// working directory.
func OutputPath(inputPath string) string {
	dir, file := splitDir(inputPath)
	stem, ext := splitExt(file)
	return joinDir(dir, stem+"_noceg"+ext)
}

func splitDir(path string) (dir, file string) {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return "", path
	}
	return path[:i+1], path[i+1:]
}

func splitExt(file string) (stem, ext string) {
	i := strings.LastIndex(file, ".")
	if i <= 0 {
		return file, ""
	}
	return file[:i], file[i:]
}

func joinDir(dir, file string) string {
	return dir + file
}
