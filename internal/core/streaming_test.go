package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestWrapForReading(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		charset  *charmap.Charmap
		expected string
	}{
		{
			name:     "utf-8 with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,title")...),
			expected: "id,title",
		},
		{
			name:     "utf-8 without BOM",
			input:    []byte("id,title"),
			expected: "id,title",
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "utf-16le with BOM",
			input:    []byte{0xFF, 0xFE, 'i', 0, 'd', 0, ',', 0, 'x', 0},
			expected: "id,x",
		},
		{
			name:     "invalid utf-8 replaced",
			input:    []byte{'a', 0xFF, 'b'},
			expected: "a\uFFFDb",
		},
		{
			name:     "windows-1252 fallback",
			input:    []byte{'C', 'a', 'f', 0xE9},
			charset:  charmap.Windows1252,
			expected: "Café",
		},
		{
			name:     "BOM overrides charset",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("Café")...),
			charset:  charmap.Windows1252,
			expected: "Café",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(WrapForReading(bytes.NewReader(tt.input), tt.charset))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCountingReader(t *testing.T) {
	r := NewCountingReader(strings.NewReader("hello world"), 0)
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.BytesRead != 11 {
		t.Errorf("BytesRead = %d, want 11", r.BytesRead)
	}

	limited := NewCountingReader(strings.NewReader(strings.Repeat("x", 100)), 10)
	_, err := io.ReadAll(limited)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
}
