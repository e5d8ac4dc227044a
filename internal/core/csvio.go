package core

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Table is a parsed CSV file.
type Table struct {
	Header []string
	Rows   []Row
}

// Row is one data row with its line number in the source file.
type Row struct {
	Line  int
	Cells []string
}

// Map pairs cells with header names. Missing trailing cells are empty.
func (r Row) Map(header []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(r.Cells) {
			m[h] = r.Cells[i]
		} else {
			m[h] = ""
		}
	}
	return m
}

// ReadCSVFile opens and parses path. maxSize of 0 means unlimited.
func ReadCSVFile(path string, charset *charmap.Charmap, maxSize int64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CSVError{Path: path, Err: err}
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), maxSize)
	}

	t, err := ReadCSV(NewCountingReader(f, maxSize), charset)
	if err != nil {
		var ce *CSVError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return t, nil
}

// ReadCSV parses comma-delimited, optionally quoted input with a header row.
// Rows may differ in width from the header; the row validator reports that.
func ReadCSV(r io.Reader, charset *charmap.Charmap) (*Table, error) {
	cr := csv.NewReader(WrapForReading(r, charset))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &CSVError{Err: errors.New("empty file: no header row")}
	}
	if err != nil {
		return nil, csvReadError(err)
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvReadError(err)
		}
		line, _ := cr.FieldPos(0)
		t.Rows = append(t.Rows, Row{Line: line, Cells: rec})
	}
	return t, nil
}

func csvReadError(err error) error {
	if errors.Is(err, ErrFileTooLarge) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &CSVError{Line: pe.Line, Err: pe.Err}
	}
	return &CSVError{Err: err}
}

// CSVWriter writes records with every field quoted.
type CSVWriter struct {
	w *bufio.Writer
}

// NewCSVWriter returns a writer over w. Call Flush when done.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: bufio.NewWriter(w)}
}

// Write writes one record terminated by CRLF.
func (cw *CSVWriter) Write(record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := cw.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := cw.w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := cw.w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := cw.w.WriteByte('"'); err != nil {
			return err
		}
	}
	_, err := cw.w.WriteString("\r\n")
	return err
}

// Flush writes buffered data to the underlying writer.
func (cw *CSVWriter) Flush() error {
	return cw.w.Flush()
}
