package core

// history.go keeps a record of every batch in Postgres so operators can see
// what was imported, by whom, and why a batch aborted. History is optional;
// without a database the service uses NopHistory.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// DefaultHistoryLimit is the page size when none is requested.
const DefaultHistoryLimit = 50

// ErrHistoryDisabled is returned by NopHistory queries.
var ErrHistoryDisabled = errors.New("import history is not configured")

// HistoryEntry is one finished batch.
type HistoryEntry struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Kind       string          `json:"kind"`
	CSVPath    string          `json:"csvPath"`
	Actor      string          `json:"actor,omitempty"`
	Status     string          `json:"status"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	AbortCode  string          `json:"abortCode,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	Report     json.RawMessage `json:"report,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	ElapsedMS  int64           `json:"elapsedMs"`
}

// HistoryStore records and lists batches.
type HistoryStore interface {
	Record(ctx context.Context, e HistoryEntry) error
	List(ctx context.Context, collection string, limit int) ([]HistoryEntry, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NopHistory drops every entry.
type NopHistory struct{}

func (NopHistory) Record(context.Context, HistoryEntry) error { return nil }

func (NopHistory) List(context.Context, string, int) ([]HistoryEntry, error) {
	return nil, ErrHistoryDisabled
}

func (NopHistory) Purge(context.Context, time.Duration) (int64, error) { return 0, nil }

// NewHistoryEntry summarizes a report. ctx supplies the caller's address.
func NewHistoryEntry(ctx context.Context, collection string, rep *Report) HistoryEntry {
	raw, err := json.Marshal(rep)
	if err != nil {
		raw = nil
	}
	return HistoryEntry{
		ID:         rep.ID,
		Collection: collection,
		Kind:       string(rep.Kind),
		CSVPath:    rep.CSVPath,
		Actor:      rep.Actor,
		Status:     string(rep.Status),
		Total:      rep.Total,
		Succeeded:  rep.Succeeded,
		Failed:     rep.Failed,
		AbortCode:  rep.AbortCode,
		IPAddress:  IPAddressFromContext(ctx),
		UserAgent:  UserAgentFromContext(ctx),
		Report:     raw,
		StartedAt:  rep.Started,
		ElapsedMS:  rep.Elapsed.Milliseconds(),
	}
}

const historySchema = `
CREATE TABLE IF NOT EXISTS import_history (
	id          UUID PRIMARY KEY,
	collection  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	csv_path    TEXT NOT NULL,
	actor       TEXT,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	abort_code  TEXT,
	ip_address  TEXT,
	user_agent  TEXT,
	report      JSONB,
	started_at  TIMESTAMPTZ NOT NULL,
	elapsed_ms  BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS import_history_collection_idx
	ON import_history (collection, started_at DESC);
`

// PgHistory stores entries in the import_history table.
type PgHistory struct {
	db DBTX
}

// NewPgHistory returns a history store over db.
func NewPgHistory(db DBTX) *PgHistory {
	return &PgHistory{db: db}
}

// EnsureSchema creates the table when missing.
func (h *PgHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, historySchema); err != nil {
		return fmt.Errorf("create import_history: %w", err)
	}
	return nil
}

// Record inserts one entry.
func (h *PgHistory) Record(ctx context.Context, e HistoryEntry) error {
	_, err := h.db.Exec(ctx, `INSERT INTO import_history
		(id, collection, kind, csv_path, actor, status, total, succeeded, failed,
		 abort_code, ip_address, user_agent, report, started_at, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		toPgUUID(e.ID), e.Collection, e.Kind, e.CSVPath, toPgText(e.Actor), e.Status,
		e.Total, e.Succeeded, e.Failed,
		toPgText(e.AbortCode), toPgText(e.IPAddress), toPgText(e.UserAgent), []byte(e.Report),
		pgtype.Timestamptz{Time: e.StartedAt, Valid: true}, e.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("record history %s: %w", e.ID, err)
	}
	return nil
}

// List returns the newest entries first. An empty collection lists all.
func (h *PgHistory) List(ctx context.Context, collection string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := h.db.Query(ctx, `SELECT id, collection, kind, csv_path, actor, status,
		total, succeeded, failed, abort_code, ip_address, user_agent, report, started_at, elapsed_ms
		FROM import_history
		WHERE ($1 = '' OR collection = $1)
		ORDER BY started_at DESC LIMIT $2`, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		e, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Purge deletes entries started more than olderThan ago.
func (h *PgHistory) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := pgtype.Timestamptz{Time: time.Now().Add(-olderThan), Valid: true}
	tag, err := h.db.Exec(ctx, `DELETE FROM import_history WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanHistoryRow(rows pgx.Rows) (*HistoryEntry, error) {
	var (
		id                              pgtype.UUID
		actor, abortCode, ip, userAgent pgtype.Text
		report                          []byte
		startedAt                       pgtype.Timestamptz
		e                               HistoryEntry
	)
	err := rows.Scan(&id, &e.Collection, &e.Kind, &e.CSVPath, &actor, &e.Status,
		&e.Total, &e.Succeeded, &e.Failed, &abortCode, &ip, &userAgent, &report, &startedAt, &e.ElapsedMS)
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	e.ID = uuidToString(id)
	e.Actor = actor.String
	e.AbortCode = abortCode.String
	e.IPAddress = ip.String
	e.UserAgent = userAgent.String
	e.Report = report
	e.StartedAt = startedAt.Time
	return &e, nil
}

// Helper functions for type conversion

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
