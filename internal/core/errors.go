package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/ddrcsv/internal/models"
)

// Sentinels for errors.Is. The typed errors below match the sentinel of
// their category.
var (
	ErrMalformedCSV         = errors.New("malformed csv")
	ErrSchemaMismatch       = errors.New("schema mismatch")
	ErrValidationFailure    = errors.New("validation failure")
	ErrReferenceMissing     = errors.New("referenced entity missing")
	ErrSourceFileMissing    = errors.New("source file missing")
	ErrSourceFileUnreadable = errors.New("source file unreadable")
	ErrCommitFailure        = errors.New("commit failure")

	ErrNothingWritten   = errors.New("nothing written: no records found")
	ErrCollectionLocked = errors.New("collection is locked by another batch")
	ErrTooManyImports   = errors.New("too many concurrent imports, please try again later")
	ErrFileTooLarge     = errors.New("file too large")
	ErrUnknownJob       = errors.New("import job not found")
)

// CSVError reports input that could not be parsed as CSV.
type CSVError struct {
	Path string
	Line int
	Err  error
}

func (e *CSVError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("invalid csv %s: %v", e.Path, e.Err)
}

func (e *CSVError) Unwrap() error        { return e.Err }
func (e *CSVError) Is(target error) bool { return target == ErrMalformedCSV }
func (e *CSVError) Code() string         { return "CSV001" }

// SchemaMismatchError lists every missing and unexpected header.
type SchemaMismatchError struct {
	Kind       models.Kind
	Missing    []string
	Unexpected []string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing headers: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected headers: "+strings.Join(e.Unexpected, ", "))
	}
	return fmt.Sprintf("%s csv header mismatch: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }
func (e *SchemaMismatchError) Code() string         { return "SCH001" }

// RowProblem describes why one data row failed validation.
type RowProblem struct {
	Line    int      `json:"line"`
	ID      string   `json:"id,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

func (p RowProblem) String() string {
	var parts []string
	if len(p.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(p.Missing, ", "))
	}
	if len(p.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(p.Invalid, ", "))
	}
	if p.Detail != "" {
		parts = append(parts, p.Detail)
	}
	return fmt.Sprintf("line %d: %s", p.Line, strings.Join(parts, "; "))
}

// ValidationError collects the problems of every invalid row in a batch.
type ValidationError struct {
	Kind models.Kind
	Rows []RowProblem
}

func (e *ValidationError) Error() string {
	const shown = 5
	var lines []string
	for i, p := range e.Rows {
		if i == shown {
			lines = append(lines, fmt.Sprintf("and %d more", len(e.Rows)-shown))
			break
		}
		lines = append(lines, p.String())
	}
	return fmt.Sprintf("%d invalid %s row(s): %s", len(e.Rows), e.Kind, strings.Join(lines, " | "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailure }

// Code is VAL001 when some row lacks a required value, VAL002 otherwise.
func (e *ValidationError) Code() string {
	for _, p := range e.Rows {
		if len(p.Missing) > 0 {
			return "VAL001"
		}
	}
	return "VAL002"
}

// ReferenceError lists unresolved parent entities and source files.
type ReferenceError struct {
	BadEntities     []string `json:"bad_entities,omitempty"`
	MissingFiles    []string `json:"missing_files,omitempty"`
	UnreadableFiles []string `json:"unreadable_files,omitempty"`
}

func (e *ReferenceError) Error() string {
	var parts []string
	if len(e.BadEntities) > 0 {
		parts = append(parts, "missing entities: "+strings.Join(e.BadEntities, ", "))
	}
	if len(e.MissingFiles) > 0 {
		parts = append(parts, "missing files: "+strings.Join(e.MissingFiles, ", "))
	}
	if len(e.UnreadableFiles) > 0 {
		parts = append(parts, "unreadable files: "+strings.Join(e.UnreadableFiles, ", "))
	}
	return "reference check failed: " + strings.Join(parts, "; ")
}

func (e *ReferenceError) Is(target error) bool {
	switch target {
	case ErrReferenceMissing:
		return len(e.BadEntities) > 0
	case ErrSourceFileMissing:
		return len(e.MissingFiles) > 0
	case ErrSourceFileUnreadable:
		return len(e.UnreadableFiles) > 0
	}
	return false
}

func (e *ReferenceError) Code() string {
	switch {
	case len(e.BadEntities) > 0:
		return "REF001"
	case len(e.MissingFiles) > 0:
		return "FILE001"
	default:
		return "FILE002"
	}
}

// CommitError is a failed version-control command for one row.
type CommitError struct {
	ID       string
	ExitCode int
	Status   string
	Err      error
}

func (e *CommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commit %s failed: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("commit %s failed with exit code %d: %s", e.ID, e.ExitCode, e.Status)
}

func (e *CommitError) Unwrap() error        { return e.Err }
func (e *CommitError) Is(target error) bool { return target == ErrCommitFailure }
func (e *CommitError) Code() string         { return "GIT001" }

// coder is implemented by the typed errors above.
type coder interface {
	Code() string
}
