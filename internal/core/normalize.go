package core

import (
	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// record is one data row keyed by canonical field name.
type record struct {
	Line   int
	Width  int
	Values map[string]string
}

// prepare normalizes the header and every row of a parsed table.
func prepare(spec models.Spec, vs *vocab.Set, t *Table) ([]string, []record) {
	header := vs.NormalizeHeaders(string(spec.Kind()), t.Header)
	rows := make([]record, len(t.Rows))
	for i, r := range t.Rows {
		values := r.Map(header)
		normalizeRow(spec, vs, values)
		rows[i] = record{Line: r.Line, Width: len(r.Cells), Values: values}
	}
	return header, rows
}

// normalizeRow replaces variant spellings of vocabulary values in place.
// List fields are reduced to their ';'-joined codes.
func normalizeRow(spec models.Spec, vs *vocab.Set, row map[string]string) {
	for _, f := range spec.Fields() {
		if f.Vocab == "" {
			continue
		}
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		if f.List {
			row[f.Name] = vs.NormalizeList(f.Vocab, v)
		} else {
			row[f.Name] = vs.NormalizeValue(f.Vocab, v)
		}
	}
}
