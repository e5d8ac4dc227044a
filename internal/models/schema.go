// Package models defines DDR Entity and File records, their identifiers and
// the field schemas that drive CSV import and export.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is a record kind.
type Kind string

const (
	KindEntity Kind = "entity"
	KindFile   Kind = "file"
)

// ParseKind accepts "entity"/"entities" and "file"/"files".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entity", "entities", "object", "objects":
		return KindEntity, nil
	case "file", "files":
		return KindFile, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// TimeFormat is the timestamp layout used in CSV files.
const TimeFormat = "2006-01-02T15:04:05.000000"

// Field describes one column of a record kind.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	// Vocab names the controlled vocabulary constraining the value.
	Vocab string `json:"vocab,omitempty"`
	// List fields hold ';'-separated values.
	List bool `json:"list,omitempty"`
}

// FieldDef binds a Field to accessors on record type R.
type FieldDef[R any] struct {
	Field
	Get func(*R) any
	// Set assigns CSV text. Nil means the field is not imported.
	Set func(*R, string) error
	// Export renders the value for CSV. Nil falls back to fmt.Sprint.
	Export func(any) string
}

// Spec is the kind-independent view of a schema used by validators.
type Spec interface {
	Kind() Kind
	Fields() []Field
	Exceptions() []string
}

// Schema is the ordered field table of one record kind.
type Schema[R any] struct {
	kind       Kind
	defs       []FieldDef[R]
	byName     map[string]int
	exceptions []string
}

// NewSchema builds a schema. Exceptions name fields that may be absent
// from an import header.
func NewSchema[R any](kind Kind, defs []FieldDef[R], exceptions []string) *Schema[R] {
	s := &Schema[R]{
		kind:       kind,
		defs:       defs,
		byName:     make(map[string]int, len(defs)),
		exceptions: append([]string(nil), exceptions...),
	}
	for i, d := range defs {
		s.byName[d.Name] = i
	}
	return s
}

func (s *Schema[R]) Kind() Kind { return s.kind }

func (s *Schema[R]) Fields() []Field {
	out := make([]Field, len(s.defs))
	for i, d := range s.defs {
		out[i] = d.Field
	}
	return out
}

func (s *Schema[R]) Exceptions() []string {
	return append([]string(nil), s.exceptions...)
}

// Names returns field names in schema order.
func (s *Schema[R]) Names() []string {
	out := make([]string, len(s.defs))
	for i, d := range s.defs {
		out[i] = d.Name
	}
	return out
}

// Lookup returns the definition of a field.
func (s *Schema[R]) Lookup(name string) (FieldDef[R], bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldDef[R]{}, false
	}
	return s.defs[i], true
}

// Set assigns raw CSV text to a named field. Fields without a setter are
// skipped.
func (s *Schema[R]) Set(r *R, name, raw string) error {
	d, ok := s.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown %s field %q", s.kind, name)
	}
	if d.Set == nil {
		return nil
	}
	if err := d.Set(r, raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ExportNames lists the fields written by ExportRow.
func (s *Schema[R]) ExportNames(skip ...string) []string {
	var out []string
	for _, d := range s.defs {
		if !contains(skip, d.Name) {
			out = append(out, d.Name)
		}
	}
	return out
}

// ExportRow renders a record as CSV cells in schema order.
func (s *Schema[R]) ExportRow(r *R, skip ...string) []string {
	var out []string
	for _, d := range s.defs {
		if contains(skip, d.Name) {
			continue
		}
		v := d.Get(r)
		if d.Export != nil {
			out = append(out, d.Export(v))
		} else {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SplitList splits a ';'-separated value, trimming and dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// export transforms

func exportList(v any) string {
	l, _ := v.([]string)
	return strings.Join(l, "; ")
}

func exportCodes(v any) string {
	l, _ := v.([]string)
	return strings.Join(l, ";")
}

func exportTime(v any) string {
	t, _ := v.(time.Time)
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeFormat)
}

// import transforms

var timeLayouts = []string{
	TimeFormat,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

// text returns a FieldDef for a plain string field.
func text[R any](f Field, p func(*R) *string) FieldDef[R] {
	return FieldDef[R]{
		Field: f,
		Get:   func(r *R) any { return *p(r) },
		Set: func(r *R, raw string) error {
			*p(r) = strings.TrimSpace(raw)
			return nil
		},
	}
}

// list returns a FieldDef for a ';'-separated field.
func list[R any](f Field, p func(*R) *[]string) FieldDef[R] {
	f.List = true
	return FieldDef[R]{
		Field: f,
		Get:   func(r *R) any { return *p(r) },
		Set: func(r *R, raw string) error {
			*p(r) = SplitList(raw)
			return nil
		},
		Export: exportList,
	}
}

func timestamp[R any](f Field, p func(*R) *time.Time) FieldDef[R] {
	return FieldDef[R]{
		Field: f,
		Get:   func(r *R) any { return *p(r) },
		Set: func(r *R, raw string) error {
			t, err := parseTime(raw)
			if err != nil {
				return err
			}
			*p(r) = t
			return nil
		},
		Export: exportTime,
	}
}

func integer[R any](f Field, p func(*R) *int) FieldDef[R] {
	return FieldDef[R]{
		Field: f,
		Get:   func(r *R) any { return *p(r) },
		Set: func(r *R, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			*p(r) = n
			return nil
		},
	}
}

// readOnly returns a FieldDef that is exported but never imported.
func readOnly[R any](f Field, get func(*R) any, export func(any) string) FieldDef[R] {
	return FieldDef[R]{Field: f, Get: get, Export: export}
}
