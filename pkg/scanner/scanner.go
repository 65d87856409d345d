// Package scanner implements a wildcarded byte-pattern matcher over a flat
// memory region, the same concern the original signature finder delegates
// to the mem library's pattern/default_scanner. No equivalent library
// exists in the module's dependency set, so this is a small hand-rolled
// linear scan.
package scanner

import (
	"strconv"
	"strings"
)

// token is one element of a compiled Pattern: either a concrete byte to
// match exactly, or a wildcard matching any byte.
type token struct {
	value    byte
	wildcard bool
}

// Pattern is a compiled whitespace-delimited hex/wildcard byte pattern,
// e.g. "51 B8 ?? ?? ?? ?? FF D0 59 FF E0".
type Pattern struct {
	tokens []token
}

// Compile parses a pattern string. A malformed pattern yields a Pattern
// with zero tokens, which never matches anything — callers treat this the
// same as "not found" rather than failing the whole scan, matching
// spec.md §7's scanner error policy.
func Compile(pattern string) Pattern {
	fields := strings.Fields(pattern)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		if f == "??" || f == "?" {
			tokens = append(tokens, token{wildcard: true})
			continue
		}
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return Pattern{}
		}
		tokens = append(tokens, token{value: byte(b)})
	}
	return Pattern{tokens: tokens}
}

// Len reports the number of bytes this pattern spans.
func (p Pattern) Len() int { return len(p.tokens) }

func (p Pattern) matchesAt(region []byte, at int) bool {
	if len(p.tokens) == 0 || at+len(p.tokens) > len(region) {
		return false
	}
	for i, t := range p.tokens {
		if !t.wildcard && region[at+i] != t.value {
			return false
		}
	}
	return true
}

// Region is a half-open (base, length) byte range: base is the address
// region[0] corresponds to, length is len(Data).
type Region struct {
	Base uint32
	Data []byte
}

// FindFirst returns the address of the first match of pattern within
// region, or (0, false).
func FindFirst(pattern Pattern, region Region) (uint32, bool) {
	for i := 0; i <= len(region.Data)-pattern.Len(); i++ {
		if pattern.matchesAt(region.Data, i) {
			return region.Base + uint32(i), true
		}
	}
	return 0, false
}

// FindAll returns the start address of every match of pattern within
// region, in ascending order; overlapping matches are all reported.
func FindAll(pattern Pattern, region Region) []uint32 {
	var out []uint32
	if pattern.Len() == 0 {
		return out
	}
	for i := 0; i <= len(region.Data)-pattern.Len(); i++ {
		if pattern.matchesAt(region.Data, i) {
			out = append(out, region.Base+uint32(i))
		}
	}
	return out
}

// FindFirstOf tries each pattern in order against region and returns the
// first hit, reporting which pattern index matched.
func FindFirstOf(patterns []Pattern, region Region) (addr uint32, index int, ok bool) {
	for idx, p := range patterns {
		if a, found := FindFirst(p, region); found {
			return a, idx, true
		}
	}
	return 0, -1, false
}
