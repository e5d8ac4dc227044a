package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/models"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Phase indicates the current stage of a batch.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseReading    Phase = "reading"
	PhaseValidating Phase = "validating"
	PhaseChecking   Phase = "checking"
	PhaseImporting  Phase = "importing"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// Progress is reported while a batch runs.
type Progress struct {
	Phase Phase `json:"phase"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

// ImportRequest describes one batch.
type ImportRequest struct {
	Kind           models.Kind
	CSVPath        string
	CollectionPath string
	Actor          dvcs.Actor

	// DryRun stops after validation and reference checks.
	DryRun bool

	// OnProgress, when set, is called from the importing goroutine.
	OnProgress func(Progress)
}

func (r ImportRequest) progress(p Phase, done, total int) {
	if r.OnProgress != nil {
		r.OnProgress(Progress{Phase: p, Done: done, Total: total})
	}
}

// Status is the final state of a batch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusChecked   Status = "checked"
)

// RowOutcome is the result of importing one row.
type RowOutcome struct {
	Line    int           `json:"line"`
	ID      string        `json:"id,omitempty"`
	Created bool          `json:"created"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
	Code    string        `json:"code,omitempty"`
}

// OK reports whether the row was imported.
func (o RowOutcome) OK() bool { return o.Error == "" }

// Report summarizes one batch.
type Report struct {
	ID             string          `json:"id"`
	Kind           models.Kind     `json:"kind"`
	CSVPath        string          `json:"csv_path"`
	CollectionPath string          `json:"collection_path"`
	Actor          string          `json:"actor"`
	Status         Status          `json:"status"`
	Total          int             `json:"total"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	Outcomes       []RowOutcome    `json:"outcomes,omitempty"`
	Problems       []RowProblem    `json:"problems,omitempty"`
	References     *ReferenceError `json:"references,omitempty"`
	Missing        []string        `json:"missing_headers,omitempty"`
	Unexpected     []string        `json:"unexpected_headers,omitempty"`
	Abort          string          `json:"abort,omitempty"`
	AbortCode      string          `json:"abort_code,omitempty"`
	Started        time.Time       `json:"started"`
	Elapsed        time.Duration   `json:"elapsed"`
}

// abort records a batch-fatal error on the report and returns it.
func (r *Report) abort(err error) error {
	r.Status = StatusAborted
	r.Abort = err.Error()
	if c, ok := err.(coder); ok {
		r.AbortCode = c.Code()
	}
	switch e := err.(type) {
	case *SchemaMismatchError:
		r.Missing, r.Unexpected = e.Missing, e.Unexpected
	case *ValidationError:
		r.Problems = e.Rows
	case *ReferenceError:
		r.References = e
	}
	return err
}

func (r *Report) record(o RowOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.OK() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// FailedRows returns the outcomes of rows that were not imported.
func (r *Report) FailedRows() []RowOutcome {
	var out []RowOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// ExportResult describes a written CSV file.
type ExportResult struct {
	Path    string      `json:"path"`
	Kind    models.Kind `json:"kind"`
	Records int         `json:"records"`
}
