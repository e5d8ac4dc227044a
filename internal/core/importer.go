package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/ddrcsv/internal/docstore"
	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// DefaultAgent identifies this tool in commit messages.
const DefaultAgent = "importers.densho"

// RecordStore persists records. Satisfied by *store.Store.
type RecordStore interface {
	EntityLoader
	SaveEntity(path string, e *models.Entity) error
	LoadFile(path string) (*models.File, error)
	SaveFile(path string, f *models.File) error
	Exists(path string) bool
}

// ImporterConfig holds the settings shared by every batch.
type ImporterConfig struct {
	Agent     string
	Templates []string
	// Charset decodes CSV input without a byte order mark. Nil means UTF-8.
	Charset     *charmap.Charmap
	MaxFileSize int64
	Location    *time.Location
}

// Importer runs CSV batches against collection repositories.
// It holds no per-batch state and may be shared.
type Importer struct {
	store    RecordStore
	git      dvcs.Committer
	vocab    *vocab.Set
	index    docstore.Indexer
	entities *models.Schema[models.Entity]
	files    *models.Schema[models.File]
	cfg      ImporterConfig
	now      func() time.Time
}

// NewImporter returns an Importer. A nil indexer disables search posting.
func NewImporter(st RecordStore, git dvcs.Committer, vs *vocab.Set, ix docstore.Indexer, cfg ImporterConfig) *Importer {
	if cfg.Agent == "" {
		cfg.Agent = DefaultAgent
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if ix == nil {
		ix = docstore.Nop{}
	}
	im := &Importer{
		store:    st,
		git:      git,
		vocab:    vs,
		index:    ix,
		entities: models.EntitySchema(),
		files:    models.FileSchema(),
		cfg:      cfg,
	}
	im.now = func() time.Time { return time.Now().In(im.cfg.Location) }
	return im
}

// Spec returns the schema of a kind.
func (im *Importer) Spec(kind models.Kind) (models.Spec, error) {
	switch kind {
	case models.KindEntity:
		return im.entities, nil
	case models.KindFile:
		return im.files, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// TemplateHeader is the header row of an empty import CSV: every field the
// importer assigns, with entity_id leading for files.
func (im *Importer) TemplateHeader(kind models.Kind) ([]string, error) {
	switch kind {
	case models.KindEntity:
		return importable(im.entities, nil), nil
	case models.KindFile:
		return importable(im.files, []string{models.FileEntityColumn}), nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

func importable[R any](s *models.Schema[R], out []string) []string {
	for _, name := range s.Names() {
		if def, ok := s.Lookup(name); ok && def.Set != nil && !autoFields[name] {
			out = append(out, name)
		}
	}
	return out
}

// batch is one validated CSV ready for the row loop.
type batch struct {
	req    ImportRequest
	header []string
	rows   []record
	log    *slog.Logger
}

// Import runs one batch. A returned error means the batch was aborted
// before any record was written; the report then carries the reason.
// Row failures are recorded in the report and do not produce an error.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*Report, error) {
	started := time.Now()
	rep := &Report{
		ID:             uuid.NewString(),
		Kind:           req.Kind,
		CSVPath:        req.CSVPath,
		CollectionPath: req.CollectionPath,
		Actor:          req.Actor.Name,
		Started:        started,
	}
	defer func() { rep.Elapsed = time.Since(started) }()

	log := logging.WithFields(ctx,
		"batch_id", rep.ID,
		"kind", req.Kind,
		"collection", filepath.Base(req.CollectionPath),
	)

	b, err := im.prepareBatch(req, rep, log)
	if err != nil {
		req.progress(PhaseFailed, 0, rep.Total)
		log.Warn("import aborted", "error", err, "code", rep.AbortCode)
		return rep, err
	}
	if req.DryRun {
		rep.Status = StatusChecked
		req.progress(PhaseComplete, 0, rep.Total)
		log.Info("check passed", "rows", rep.Total)
		return rep, nil
	}

	req.progress(PhaseImporting, 0, rep.Total)
	for i, rec := range b.rows {
		var o RowOutcome
		if req.Kind == models.KindFile {
			o = im.importFile(ctx, b, rec)
		} else {
			o = im.importEntity(ctx, b, rec)
		}
		rep.record(o)
		req.progress(PhaseImporting, i+1, rep.Total)

		if o.OK() {
			log.Info("row imported", "row", i+1, "of", rep.Total, "id", o.ID, "created", o.Created, "elapsed", o.Elapsed)
		} else {
			log.Error("row failed", "row", i+1, "of", rep.Total, "id", o.ID, "error", o.Error)
		}
	}

	rep.Status = StatusCompleted
	req.progress(PhaseComplete, rep.Total, rep.Total)
	log.Info("import complete",
		"total", rep.Total,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"elapsed", time.Since(started),
	)
	return rep, nil
}

// prepareBatch runs every check that precedes mutation.
func (im *Importer) prepareBatch(req ImportRequest, rep *Report, log *slog.Logger) (*batch, error) {
	spec, err := im.Spec(req.Kind)
	if err != nil {
		return nil, rep.abort(err)
	}
	cid, err := models.ParseCollectionID(filepath.Base(req.CollectionPath))
	if err != nil {
		return nil, rep.abort(fmt.Errorf("collection path %s: %w", req.CollectionPath, err))
	}

	req.progress(PhaseReading, 0, 0)
	tbl, err := ReadCSVFile(req.CSVPath, im.cfg.Charset, im.cfg.MaxFileSize)
	if err != nil {
		return nil, rep.abort(err)
	}
	header, rows := prepare(spec, im.vocab, tbl)
	rep.Total = len(rows)
	log.Debug("csv read", "rows", len(rows), "columns", len(header))

	req.progress(PhaseValidating, 0, rep.Total)
	if err := ValidateHeaders(spec, header); err != nil {
		return nil, rep.abort(err)
	}

	rv := NewRowValidator(spec, im.vocab, &cid)
	var problems []RowProblem
	for _, rec := range rows {
		p := rv.Validate(rec.Line, rec.Width, len(header), rec.Values)
		if p == nil {
			if err := im.applyScratch(req.Kind, header, rec.Values); err != nil {
				p = &RowProblem{Line: rec.Line, ID: rowID(req.Kind, rec.Values), Detail: err.Error()}
			}
		}
		if p != nil {
			problems = append(problems, *p)
		}
	}
	if len(problems) > 0 {
		return nil, rep.abort(&ValidationError{Kind: req.Kind, Rows: problems})
	}

	if req.Kind == models.KindFile {
		req.progress(PhaseChecking, 0, rep.Total)
		values := make([]map[string]string, len(rows))
		for i, rec := range rows {
			values[i] = rec.Values
		}
		if ref := CheckReferences(req.CollectionPath, filepath.Dir(req.CSVPath), values, im.store); ref != nil {
			return nil, rep.abort(ref)
		}
	}

	return &batch{req: req, header: header, rows: rows, log: log}, nil
}

// applyScratch runs the setters on a throwaway record so conversion errors
// surface during validation.
func (im *Importer) applyScratch(kind models.Kind, header []string, values map[string]string) error {
	if kind == models.KindFile {
		return applyFields(im.files, &models.File{}, header, values)
	}
	return applyFields(im.entities, &models.Entity{}, header, values)
}

// autoFields keep their current value when the CSV leaves them blank.
var autoFields = map[string]bool{"record_created": true, "record_lastmod": true}

// applyFields assigns every header column to r through the schema's setter
// table. The entity linkage column of files rows is not a record field.
func applyFields[R any](s *models.Schema[R], r *R, header []string, values map[string]string) error {
	var errs []error
	for _, name := range header {
		if name == models.FileEntityColumn && s.Kind() == models.KindFile {
			continue
		}
		raw := values[name]
		if autoFields[name] && strings.TrimSpace(raw) == "" {
			continue
		}
		if err := s.Set(r, name, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (im *Importer) importEntity(ctx context.Context, b *batch, rec record) RowOutcome {
	start := time.Now()
	id := strings.TrimSpace(rec.Values["id"])
	out := RowOutcome{Line: rec.Line, ID: id}

	eid, err := models.ParseEntityID(id)
	if err != nil {
		return out.fail(err, start)
	}
	path := eid.JSONPath(b.req.CollectionPath)

	e := &models.Entity{}
	exists := im.store.Exists(path)
	if exists {
		if e, err = im.store.LoadEntity(path); err != nil {
			return out.fail(err, start)
		}
	}
	created, err := im.isNew(ctx, b.req.CollectionPath, path, exists)
	if err != nil {
		return out.fail(err, start)
	}

	if err := applyFields(im.entities, e, b.header, rec.Values); err != nil {
		return out.fail(err, start)
	}
	now := im.now()
	e.ID = eid.String()
	if e.RecordCreated.IsZero() {
		e.RecordCreated = now
	}
	e.RecordLastmod = now

	if err := im.store.SaveEntity(path, e); err != nil {
		return out.fail(err, start)
	}

	var res dvcs.Result
	if created {
		res, err = im.git.CreateEntity(ctx, b.req.Actor, b.req.CollectionPath, e.ID, []string{path}, im.cfg.Templates, im.cfg.Agent)
	} else {
		res, err = im.git.UpdateEntity(ctx, b.req.Actor, b.req.CollectionPath, e.ID, []string{path}, im.cfg.Agent)
	}
	if err := commitError(e.ID, res, err); err != nil {
		return out.fail(err, start)
	}

	im.post(ctx, b.log, string(models.KindEntity), e.ID, e)
	out.Created = created
	out.Elapsed = time.Since(start)
	return out
}

func (im *Importer) importFile(ctx context.Context, b *batch, rec record) RowOutcome {
	start := time.Now()
	out := RowOutcome{Line: rec.Line, ID: rowID(models.KindFile, rec.Values)}

	eid, err := models.ParseEntityID(strings.TrimSpace(rec.Values[models.FileEntityColumn]))
	if err != nil {
		return out.fail(err, start)
	}
	coll := CollectionFor(b.req.CollectionPath, eid.CollectionID)
	entityPath := eid.JSONPath(coll)
	ent, err := im.store.LoadEntity(entityPath)
	if err != nil {
		return out.fail(err, start)
	}

	src := SourcePath(filepath.Dir(b.req.CSVPath), rec.Values["basename_orig"])
	role := strings.TrimSpace(rec.Values["role"])
	staged, err := stageBinary(src, filepath.Join(eid.Path(coll), models.CollectionFilesPrefix))
	if err != nil {
		return out.fail(err, start)
	}
	defer staged.discard()

	fid := models.NewFileID(eid, role, staged.SHA1)
	out.ID = fid.String()
	jsonPath := fid.JSONPath(coll)
	ext := strings.ToLower(filepath.Ext(src))
	binPath := fid.BinaryPath(coll, ext)

	f := &models.File{}
	exists := im.store.Exists(jsonPath)
	if exists {
		if f, err = im.store.LoadFile(jsonPath); err != nil {
			return out.fail(err, start)
		}
	}
	created, err := im.isNew(ctx, coll, jsonPath, exists)
	if err != nil {
		return out.fail(err, start)
	}
	if err := applyFields(im.files, f, b.header, rec.Values); err != nil {
		return out.fail(err, start)
	}
	f.ID = fid.String()
	f.Role = role
	f.SHA1, f.SHA256, f.MD5 = staged.SHA1, staged.SHA256, staged.MD5
	f.Size = staged.Size
	f.BasenameOrig = filepath.Base(src)
	f.Mimetype = mimeType(ext)

	// The File ID carries the sha1 prefix, so a binary already at binPath
	// (possibly an annex symlink) holds the same content.
	if _, err := os.Lstat(binPath); errors.Is(err, fs.ErrNotExist) {
		if err := staged.commit(binPath); err != nil {
			return out.fail(err, start)
		}
	} else if err != nil {
		return out.fail(err, start)
	}
	if err := im.store.SaveFile(jsonPath, f); err != nil {
		return out.fail(err, start)
	}

	rel, _ := filepath.Rel(eid.Path(coll), binPath)
	ent.AddFile(models.FileRef{ID: f.ID, Role: f.Role, Path: filepath.ToSlash(rel), Label: f.Label})
	ent.RecordLastmod = im.now()
	if err := im.store.SaveEntity(entityPath, ent); err != nil {
		return out.fail(err, start)
	}

	var res dvcs.Result
	changed := []string{jsonPath, entityPath}
	annexed := []string{binPath}
	if created {
		res, err = im.git.AddFile(ctx, b.req.Actor, coll, f.ID, changed, annexed, im.cfg.Agent)
	} else {
		res, err = im.git.UpdateFile(ctx, b.req.Actor, coll, f.ID, changed, annexed, im.cfg.Agent)
	}
	if err := commitError(f.ID, res, err); err != nil {
		return out.fail(err, start)
	}

	b.log.Debug("file staged", "id", f.ID, "size", logging.HumanizeBytes(f.Size), "mimetype", f.Mimetype)
	im.post(ctx, b.log, string(models.KindFile), f.ID, f)
	out.Created = created
	out.Elapsed = time.Since(start)
	return out
}

// isNew reports whether a record must be committed as a create. A record
// left on disk by a failed create commit is still new.
func (im *Importer) isNew(ctx context.Context, repo, path string, exists bool) (bool, error) {
	if !exists {
		return true, nil
	}
	tracked, err := im.git.Tracked(ctx, repo, path)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", filepath.Base(path), err)
	}
	return !tracked, nil
}

// post sends a record to the search index. Failures are logged only.
func (im *Importer) post(ctx context.Context, log *slog.Logger, model, id string, doc any) {
	if err := im.index.Post(ctx, model, id, doc); err != nil {
		log.Warn("docstore post failed", "id", id, "error", err)
	}
}

func commitError(id string, res dvcs.Result, err error) error {
	if err != nil {
		return &CommitError{ID: id, ExitCode: res.ExitCode, Status: res.Status, Err: err}
	}
	if !res.OK() {
		return &CommitError{ID: id, ExitCode: res.ExitCode, Status: res.Status}
	}
	return nil
}

func (o RowOutcome) fail(err error, start time.Time) RowOutcome {
	o.Error = err.Error()
	o.Code = ErrorCode(err)
	o.Elapsed = time.Since(start)
	return o
}
