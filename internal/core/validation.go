package core

// validation.go checks a batch before anything is written.
//
// Validation happens at two levels:
//  1. Header validation: the normalized header must name exactly the schema
//     fields, less the kind's exceptions.
//  2. Row validation: required values present, vocabulary values permitted,
//     identifiers well formed. Every row is checked so the report lists all
//     bad rows at once.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// ValidateHeaders compares normalized headers with a kind's schema.
// Order is irrelevant. Missing names are reported in schema order and
// unexpected names in header order.
func ValidateHeaders(spec models.Spec, headers []string) error {
	seen := make(map[string]bool, len(headers))
	var unexpected []string

	known := make(map[string]bool)
	for _, f := range spec.Fields() {
		known[f.Name] = true
	}
	if spec.Kind() == models.KindFile {
		known[models.FileEntityColumn] = true
	}

	for _, h := range headers {
		switch {
		case seen[h]:
			unexpected = append(unexpected, h+" (duplicate)")
		case !known[h]:
			unexpected = append(unexpected, h)
		}
		seen[h] = true
	}

	exceptions := make(map[string]bool)
	for _, name := range spec.Exceptions() {
		exceptions[name] = true
	}

	var missing []string
	if spec.Kind() == models.KindFile && !seen[models.FileEntityColumn] {
		missing = append(missing, models.FileEntityColumn)
	}
	for _, f := range spec.Fields() {
		if !seen[f.Name] && !exceptions[f.Name] {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	return &SchemaMismatchError{Kind: spec.Kind(), Missing: missing, Unexpected: unexpected}
}

// RowValidator checks rows of one kind against required fields and
// controlled vocabularies.
type RowValidator struct {
	spec       models.Spec
	fields     []models.Field
	vocab      *vocab.Set
	collection *models.CollectionID
}

// NewRowValidator returns a validator. When collection is non-nil, entity
// IDs must belong to it.
func NewRowValidator(spec models.Spec, vs *vocab.Set, collection *models.CollectionID) *RowValidator {
	return &RowValidator{
		spec:       spec,
		fields:     spec.Fields(),
		vocab:      vs,
		collection: collection,
	}
}

// MissingFields lists required fields that are absent or blank.
func (v *RowValidator) MissingFields(row map[string]string) []string {
	var missing []string
	if v.spec.Kind() == models.KindFile && blank(row, models.FileEntityColumn) {
		missing = append(missing, models.FileEntityColumn)
	}
	for _, f := range v.fields {
		if f.Required && blank(row, f.Name) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// InvalidValues lists fields whose value is not permitted. Blank values are
// left to MissingFields.
func (v *RowValidator) InvalidValues(row map[string]string) []string {
	var invalid []string
	for _, f := range v.fields {
		raw := strings.TrimSpace(row[f.Name])
		if raw == "" {
			continue
		}
		if !v.validField(f, raw) {
			invalid = append(invalid, f.Name)
		}
	}
	if v.spec.Kind() == models.KindFile {
		if raw := strings.TrimSpace(row[models.FileEntityColumn]); raw != "" {
			if !v.inCollection(raw) {
				invalid = append(invalid, models.FileEntityColumn)
			}
		}
	}
	return invalid
}

func (v *RowValidator) validField(f models.Field, raw string) bool {
	if f.Vocab != "" && v.vocab.Known(f.Vocab) {
		if f.List {
			for _, code := range v.vocab.Codes(f.Vocab, raw) {
				if !v.vocab.Valid(f.Vocab, code) {
					return false
				}
			}
			return true
		}
		return v.vocab.Valid(f.Vocab, raw)
	}

	switch {
	case v.spec.Kind() == models.KindEntity && f.Name == "id":
		return v.inCollection(raw)
	case v.spec.Kind() == models.KindFile && f.Name == "role":
		return models.ValidRole(raw)
	case v.spec.Kind() == models.KindFile && f.Name == "basename_orig":
		return !strings.ContainsAny(raw, `/\`) && raw != "." && raw != ".."
	}
	return true
}

// inCollection reports whether raw is an entity ID of the batch's collection.
func (v *RowValidator) inCollection(raw string) bool {
	eid, err := models.ParseEntityID(raw)
	if err != nil {
		return false
	}
	return v.collection == nil || eid.CollectionID == *v.collection
}

// Validate returns the problems of one row, or nil when it is acceptable.
// width is the number of cells on the line and headerWidth the number of
// header columns.
func (v *RowValidator) Validate(line, width, headerWidth int, row map[string]string) *RowProblem {
	p := RowProblem{
		Line:    line,
		ID:      rowID(v.spec.Kind(), row),
		Missing: v.MissingFields(row),
		Invalid: v.InvalidValues(row),
	}
	if width != headerWidth {
		p.Detail = fmt.Sprintf("row has %d cells, header has %d", width, headerWidth)
	}
	if len(p.Missing) == 0 && len(p.Invalid) == 0 && p.Detail == "" {
		return nil
	}
	return &p
}

// rowID is the identifier shown in reports for a row.
func rowID(kind models.Kind, row map[string]string) string {
	if kind == models.KindFile {
		name := strings.TrimSpace(row["basename_orig"])
		if eid := strings.TrimSpace(row[models.FileEntityColumn]); eid != "" {
			return eid + " " + name
		}
		return name
	}
	return strings.TrimSpace(row["id"])
}

func blank(row map[string]string, name string) bool {
	return strings.TrimSpace(row[name]) == ""
}
