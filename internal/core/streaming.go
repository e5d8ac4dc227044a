package core

// streaming.go decodes CSV input without loading the file into memory.
//
//   - A UTF-8 or UTF-16 byte order mark selects the matching decoder and is
//     removed, as exported by spreadsheet programs on Windows.
//   - Without a BOM the configured charset decodes the input. For UTF-8,
//     invalid sequences become U+FFFD instead of failing the batch.
//   - CountingReader tracks bytes consumed for size limits and progress.

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// WrapForReading returns a UTF-8 reader over r. A nil charset means UTF-8.
func WrapForReading(r io.Reader, charset *charmap.Charmap) io.Reader {
	var fallback encoding.Encoding = unicode.UTF8
	if charset != nil {
		fallback = charset
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback.NewDecoder()))
}

// CountingReader tracks bytes read and enforces an optional limit.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Limit     int64 // 0 means unlimited
}

// NewCountingReader wraps r. Reads past limit fail with ErrFileTooLarge.
func NewCountingReader(r io.Reader, limit int64) *CountingReader {
	return &CountingReader{reader: r, Limit: limit}
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.Limit > 0 && r.BytesRead > r.Limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, r.Limit)
	}
	return n, err
}
