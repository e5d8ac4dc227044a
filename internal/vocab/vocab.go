// Package vocab holds the controlled vocabularies used by DDR metadata and
// the variant tables that map alternate spellings onto canonical codes.
//
// A Set is built once from Tables and is read-only afterwards, so it can be
// shared between concurrent batches without locking.
package vocab

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Vocabulary names.
const (
	Status      = "status"
	Permissions = "permissions"
	Rights      = "rights"
	Language    = "language"
	Genre       = "genre"
	Format      = "format"
)

// Choice is one permitted value of a vocabulary.
type Choice struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// Tables is the serializable form of every vocabulary.
//
//	Choices:  vocabulary -> permitted values
//	Variants: vocabulary -> canonical code -> alternate spellings
//	Headers:  record kind -> canonical field name -> alternate header names
type Tables struct {
	Choices  map[string][]Choice            `yaml:"choices"`
	Variants map[string]map[string][]string `yaml:"variants"`
	Headers  map[string]map[string][]string `yaml:"headers"`
}

// Index maps a variant spelling to its canonical code.
type Index map[string]string

// MakeIndex inverts a canonical -> variants table.
func MakeIndex(alts map[string][]string) Index {
	idx := make(Index)
	for canonical, variants := range alts {
		for _, v := range variants {
			idx[clean(v)] = canonical
		}
	}
	return idx
}

// Lookup returns the canonical code for v and whether v was a variant.
func (idx Index) Lookup(v string) (string, bool) {
	c, ok := idx[clean(v)]
	return c, ok
}

// Set is the compiled, immutable form of Tables.
type Set struct {
	choices  map[string][]Choice
	values   map[string]map[string]bool
	variants map[string]Index
	headers  map[string]Index
}

// New compiles tables into a Set.
func New(t Tables) *Set {
	s := &Set{
		choices:  make(map[string][]Choice, len(t.Choices)),
		values:   make(map[string]map[string]bool, len(t.Choices)),
		variants: make(map[string]Index, len(t.Variants)),
		headers:  make(map[string]Index, len(t.Headers)),
	}
	for name, cs := range t.Choices {
		s.choices[name] = append([]Choice(nil), cs...)
		vals := make(map[string]bool, len(cs))
		for _, c := range cs {
			vals[c.Value] = true
		}
		s.values[name] = vals
	}
	for name, alts := range t.Variants {
		s.variants[name] = MakeIndex(alts)
	}
	for kind, alts := range t.Headers {
		s.headers[kind] = MakeIndex(alts)
	}
	return s
}

// Names lists the vocabularies that have permitted values, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.choices))
	for n := range s.choices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Choices returns the permitted values of a vocabulary.
func (s *Set) Choices(name string) []Choice {
	return append([]Choice(nil), s.choices[name]...)
}

// Known reports whether a vocabulary with permitted values exists.
func (s *Set) Known(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Valid reports whether value is a permitted code of the vocabulary.
func (s *Set) Valid(name, value string) bool {
	return s.values[name][value]
}

// NormalizeValue replaces a variant spelling with its canonical code.
// Unknown values are returned trimmed but otherwise unchanged.
func (s *Set) NormalizeValue(name, value string) string {
	v := clean(value)
	if c, ok := s.variants[name].Lookup(v); ok {
		return c
	}
	return v
}

// Codes splits a ';'-separated multi-value into canonical codes.
// Each component is resolved through the variant index first, then by the
// code part of a "code:Label" pair. Blank components are dropped.
func (s *Set) Codes(name, value string) []string {
	var codes []string
	for _, part := range strings.Split(value, ";") {
		part = clean(part)
		if part == "" {
			continue
		}
		if c, ok := s.variants[name].Lookup(part); ok {
			codes = append(codes, c)
			continue
		}
		if i := strings.IndexByte(part, ':'); i >= 0 {
			part = strings.TrimSpace(part[:i])
			if c, ok := s.variants[name].Lookup(part); ok {
				part = c
			}
		}
		codes = append(codes, part)
	}
	return codes
}

// NormalizeList is Codes joined back into a ';'-separated value.
func (s *Set) NormalizeList(name, value string) string {
	return strings.Join(s.Codes(name, value), ";")
}

// NormalizeHeaders maps alternate header names of a record kind to their
// canonical field names. The input slice is not modified.
func (s *Set) NormalizeHeaders(kind string, headers []string) []string {
	idx := s.headers[kind]
	out := make([]string, len(headers))
	for i, h := range headers {
		h = clean(h)
		if c, ok := idx.Lookup(h); ok {
			h = c
		}
		out[i] = h
	}
	return out
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
