package core

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/store"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// fakeGit records commit calls. IDs in fail get a non-zero exit. Paths of
// successful commits count as tracked.
type fakeGit struct {
	mu      sync.Mutex
	calls   []string
	annexed [][]string
	fail    map[string]bool
	tracked map[string]bool
}

func (g *fakeGit) call(op, id string, changed, annexed []string) (dvcs.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, op+" "+id)
	g.annexed = append(g.annexed, annexed)
	if g.fail[id] {
		return dvcs.Result{ExitCode: 1, Status: "fatal: simulated"}, nil
	}
	for _, p := range changed {
		g.tracked[p] = true
	}
	for _, p := range annexed {
		g.tracked[p] = true
	}
	return dvcs.Result{Status: "ok"}, nil
}

func (g *fakeGit) CreateEntity(_ context.Context, _ dvcs.Actor, _, id string, changed, _ []string, _ string) (dvcs.Result, error) {
	return g.call("create", id, changed, nil)
}

func (g *fakeGit) UpdateEntity(_ context.Context, _ dvcs.Actor, _, id string, changed []string, _ string) (dvcs.Result, error) {
	return g.call("update", id, changed, nil)
}

func (g *fakeGit) AddFile(_ context.Context, _ dvcs.Actor, _, id string, changed, annexed []string, _ string) (dvcs.Result, error) {
	return g.call("addfile", id, changed, annexed)
}

func (g *fakeGit) UpdateFile(_ context.Context, _ dvcs.Actor, _, id string, changed, annexed []string, _ string) (dvcs.Result, error) {
	return g.call("updatefile", id, changed, annexed)
}

func (g *fakeGit) Tracked(_ context.Context, _, path string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tracked[path], nil
}

func (g *fakeGit) Annexed() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]string(nil), g.annexed...)
}

func (g *fakeGit) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

var testActor = dvcs.Actor{Name: "Test User", Email: "test@example.org"}

func newTestImporter(t *testing.T) (*Importer, *fakeGit) {
	t.Helper()
	git := &fakeGit{fail: map[string]bool{}, tracked: map[string]bool{}}
	return NewImporter(store.New(), git, vocab.Default(), nil, ImporterConfig{}), git
}

// newCollection creates an empty ddr-test-1 repository directory.
func newCollection(t *testing.T) string {
	t.Helper()
	coll := filepath.Join(t.TempDir(), "ddr-test-1")
	if err := os.MkdirAll(coll, 0o755); err != nil {
		t.Fatal(err)
	}
	return coll
}

var entityImportHeader = models.EntitySchema().ExportNames("record_created", "record_lastmod", "files")

func entityValues(overrides map[string]string) map[string]string {
	row := map[string]string{
		"id":       "ddr-test-1-1",
		"status":   "completed",
		"public":   "1",
		"title":    "Camp newsletter",
		"language": "eng",
		"genre":    "periodical",
		"format":   "doc",
		"rights":   "cc",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

// writeTestCSV writes header and rows (as name -> value maps) to path.
func writeTestCSV(t *testing.T, path string, header []string, rows ...map[string]string) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := NewCSVWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		cells := make([]string, len(header))
		for i, h := range header {
			cells[i] = r[h]
		}
		if err := w.Write(cells); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return path
}

func importEntities(t *testing.T, im *Importer, coll string, rows ...map[string]string) (*Report, error) {
	t.Helper()
	csvPath := writeTestCSV(t, filepath.Join(t.TempDir(), "entities.csv"), entityImportHeader, rows...)
	return im.Import(context.Background(), ImportRequest{
		Kind:           models.KindEntity,
		CSVPath:        csvPath,
		CollectionPath: coll,
		Actor:          testActor,
	})
}

func loadEntity(t *testing.T, coll, id string) *models.Entity {
	t.Helper()
	eid, err := models.ParseEntityID(id)
	if err != nil {
		t.Fatal(err)
	}
	e, err := store.New().LoadEntity(eid.JSONPath(coll))
	if err != nil {
		t.Fatalf("LoadEntity(%s) error = %v", id, err)
	}
	return e
}

func TestImport_VariantValuesStoredCanonical(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)

	rep, err := importEntities(t, im, coll, entityValues(map[string]string{
		"status": "In Process",
		"public": "Public",
		"genre":  "Photographs",
		"format": "Still Image",
	}))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Succeeded != 1 || rep.Failed != 0 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/0", rep.Succeeded, rep.Failed)
	}

	e := loadEntity(t, coll, "ddr-test-1-1")
	got := []string{e.Status, e.Public, e.Genre, e.Format}
	want := []string{"inprocess", "1", "photograph", "img"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored values mismatch (-want +got):\n%s", diff)
	}
	if e.RecordCreated.IsZero() || e.RecordLastmod.IsZero() {
		t.Error("timestamps not set on create")
	}
	if diff := cmp.Diff([]string{"create ddr-test-1-1"}, git.Calls()); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_LanguageCodes(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)

	if _, err := importEntities(t, im, coll, entityValues(map[string]string{
		"language": "eng;jpn:Japanese",
		"creators": "Sato, Ken; Tanaka, Mai",
	})); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	e := loadEntity(t, coll, "ddr-test-1-1")
	if diff := cmp.Diff([]string{"eng", "jpn"}, e.Language); diff != "" {
		t.Errorf("language mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Sato, Ken", "Tanaka, Mai"}, e.Creators); diff != "" {
		t.Errorf("creators mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_MissingStatusAbortsBatch(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)

	rep, err := importEntities(t, im, coll,
		entityValues(map[string]string{"id": "ddr-test-1-1"}),
		entityValues(map[string]string{"id": "ddr-test-1-2", "status": ""}),
	)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Import() error = %v, want *ValidationError", err)
	}
	if len(ve.Rows) != 1 {
		t.Fatalf("problem rows = %d, want 1", len(ve.Rows))
	}
	if diff := cmp.Diff([]string{"status"}, ve.Rows[0].Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	if len(ve.Rows[0].Invalid) != 0 {
		t.Errorf("invalid = %v, want none", ve.Rows[0].Invalid)
	}
	if rep.Status != StatusAborted || rep.AbortCode != "VAL001" {
		t.Errorf("report status/code = %s/%s, want aborted/VAL001", rep.Status, rep.AbortCode)
	}
	if calls := git.Calls(); len(calls) != 0 {
		t.Errorf("commits = %v, want none", calls)
	}
	if _, err := os.Stat(filepath.Join(coll, "files")); !os.IsNotExist(err) {
		t.Error("records were written for an aborted batch")
	}
}

func TestImport_AllBadRowsReported(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)

	_, err := importEntities(t, im, coll,
		entityValues(map[string]string{"id": "ddr-test-1-1", "genre": "not-a-genre"}),
		entityValues(map[string]string{"id": "ddr-test-1-2"}),
		entityValues(map[string]string{"id": "ddr-other-9-3", "language": "eng;xx"}),
	)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Import() error = %v, want *ValidationError", err)
	}
	got := map[int][]string{}
	for _, p := range ve.Rows {
		got[p.Line] = p.Invalid
	}
	want := map[int][]string{
		2: {"genre"},
		4: {"id", "language"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("invalid fields by line mismatch (-want +got):\n%s", diff)
	}
	if ve.Code() != "VAL002" {
		t.Errorf("Code() = %s, want VAL002", ve.Code())
	}
}

func TestImport_BadTimestampCaughtBeforeWrite(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)
	header := append([]string{"record_created"}, entityImportHeader...)
	row := entityValues(map[string]string{"record_created": "last tuesday"})
	csvPath := writeTestCSV(t, filepath.Join(t.TempDir(), "e.csv"), header, row)

	_, err := im.Import(context.Background(), ImportRequest{
		Kind: models.KindEntity, CSVPath: csvPath, CollectionPath: coll, Actor: testActor,
	})
	if !errors.Is(err, ErrValidationFailure) {
		t.Fatalf("Import() error = %v, want ErrValidationFailure", err)
	}
	if len(git.Calls()) != 0 {
		t.Error("commit made for invalid batch")
	}
}

func TestImport_HeaderOnly(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)

	rep, err := importEntities(t, im, coll)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Total != 0 || rep.Succeeded != 0 || rep.Failed != 0 {
		t.Errorf("total/succeeded/failed = %d/%d/%d, want 0/0/0", rep.Total, rep.Succeeded, rep.Failed)
	}
	if rep.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", rep.Status)
	}
}

func TestImport_HeaderMismatch(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)

	header := []string{"id", "status", "colour"}
	csvPath := writeTestCSV(t, filepath.Join(t.TempDir(), "e.csv"), header)
	rep, err := im.Import(context.Background(), ImportRequest{
		Kind: models.KindEntity, CSVPath: csvPath, CollectionPath: coll, Actor: testActor,
	})

	var se *SchemaMismatchError
	if !errors.As(err, &se) {
		t.Fatalf("Import() error = %v, want *SchemaMismatchError", err)
	}
	if diff := cmp.Diff([]string{"colour"}, se.Unexpected); diff != "" {
		t.Errorf("unexpected mismatch (-want +got):\n%s", diff)
	}
	if len(se.Missing) != len(entityImportHeader)-2 {
		t.Errorf("len(Missing) = %d, want %d", len(se.Missing), len(entityImportHeader)-2)
	}
	if diff := cmp.Diff(se.Missing, rep.Missing); diff != "" {
		t.Errorf("report missing mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_ReRunUpdates(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)

	if _, err := importEntities(t, im, coll, entityValues(nil)); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	created := loadEntity(t, coll, "ddr-test-1-1").RecordCreated

	rep, err := importEntities(t, im, coll, entityValues(map[string]string{"title": "Revised title"}))
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if rep.Outcomes[0].Created {
		t.Error("second run reported a create")
	}

	e := loadEntity(t, coll, "ddr-test-1-1")
	if e.Title != "Revised title" {
		t.Errorf("Title = %q, want %q", e.Title, "Revised title")
	}
	if !e.RecordCreated.Equal(created) {
		t.Errorf("RecordCreated changed on update: %v -> %v", created, e.RecordCreated)
	}
	want := []string{"create ddr-test-1-1", "update ddr-test-1-1"}
	if diff := cmp.Diff(want, git.Calls()); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_CommitFailureContinues(t *testing.T) {
	im, git := newTestImporter(t)
	git.fail["ddr-test-1-1"] = true
	coll := newCollection(t)

	rep, err := importEntities(t, im, coll,
		entityValues(map[string]string{"id": "ddr-test-1-1"}),
		entityValues(map[string]string{"id": "ddr-test-1-2"}),
	)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Succeeded != 1 || rep.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/1", rep.Succeeded, rep.Failed)
	}
	failed := rep.FailedRows()
	if len(failed) != 1 || failed[0].ID != "ddr-test-1-1" || failed[0].Code != "GIT001" {
		t.Errorf("FailedRows() = %+v", failed)
	}
	if len(git.Calls()) != 2 {
		t.Errorf("commits = %v, want 2 attempts", git.Calls())
	}
}

func TestImport_RetryAfterFailedCreate(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)

	git.fail["ddr-test-1-1"] = true
	rep, err := importEntities(t, im, coll, entityValues(nil))
	if err != nil || rep.Failed != 1 {
		t.Fatalf("first Import() = %+v, %v; want one failed row", rep, err)
	}

	delete(git.fail, "ddr-test-1-1")
	rep, err = importEntities(t, im, coll, entityValues(nil))
	if err != nil || rep.Succeeded != 1 {
		t.Fatalf("second Import() = %+v, %v; want one imported row", rep, err)
	}
	if !rep.Outcomes[0].Created {
		t.Error("retry of a failed create reported an update")
	}
	want := []string{"create ddr-test-1-1", "create ddr-test-1-1"}
	if diff := cmp.Diff(want, git.Calls()); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_EntityTemplateKeepsRecord(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not installed")
	}
	tplDir := t.TempDir()
	for name, body := range map[string]string{"entity.json": "{}", "mets.xml": "<mets/>"} {
		if err := os.WriteFile(filepath.Join(tplDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	im := NewImporter(store.New(), dvcs.NewGit(bin, false, 10*time.Second), vocab.Default(), nil, ImporterConfig{
		Templates: []string{filepath.Join(tplDir, "entity.json"), filepath.Join(tplDir, "mets.xml")},
	})
	coll := newCollection(t)

	rep, err := importEntities(t, im, coll, entityValues(nil))
	if err != nil || rep.Succeeded != 1 {
		t.Fatalf("Import() = %+v, %v; want one imported row", rep, err)
	}

	e := loadEntity(t, coll, "ddr-test-1-1")
	if e.ID != "ddr-test-1-1" || e.Title != "Camp newsletter" || e.Status != "completed" {
		t.Errorf("entity after create = %+v, want imported values", e)
	}
	if _, err := os.Stat(filepath.Join(coll, "files", "ddr-test-1-1", "mets.xml")); err != nil {
		t.Errorf("mets.xml template not copied: %v", err)
	}
}

func TestImport_DryRun(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)
	csvPath := writeTestCSV(t, filepath.Join(t.TempDir(), "e.csv"), entityImportHeader, entityValues(nil))

	var phases []Phase
	rep, err := im.Import(context.Background(), ImportRequest{
		Kind:           models.KindEntity,
		CSVPath:        csvPath,
		CollectionPath: coll,
		Actor:          testActor,
		DryRun:         true,
		OnProgress:     func(p Progress) { phases = append(phases, p.Phase) },
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Status != StatusChecked || rep.Total != 1 {
		t.Errorf("status/total = %s/%d, want checked/1", rep.Status, rep.Total)
	}
	if len(git.Calls()) != 0 {
		t.Error("dry run committed")
	}
	want := []Phase{PhaseReading, PhaseValidating, PhaseComplete}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_BadCollectionPath(t *testing.T) {
	im, _ := newTestImporter(t)
	dir := filepath.Join(t.TempDir(), "not a collection")
	_, err := importEntities(t, im, dir, entityValues(nil))
	if !errors.Is(err, models.ErrInvalidID) {
		t.Errorf("Import() error = %v, want ErrInvalidID", err)
	}
}

// files

var fileImportHeader = []string{
	"entity_id", "role", "basename_orig", "public", "rights",
	"sort", "label", "digitize_person", "tech_notes",
}

func fileValues(overrides map[string]string) map[string]string {
	row := map[string]string{
		"entity_id":     "ddr-test-1-1",
		"role":          "master",
		"basename_orig": "scan.jpg",
		"public":        "1",
		"rights":        "cc",
		"sort":          "1",
		"label":         "Page 1",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

// seedEntity writes an entity record without going through the importer.
func seedEntity(t *testing.T, coll, id string) {
	t.Helper()
	eid, err := models.ParseEntityID(id)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.New().SaveEntity(eid.JSONPath(coll), &models.Entity{ID: id, Title: "Seed"}); err != nil {
		t.Fatal(err)
	}
}

// filesBatch writes a files CSV plus the named source files into one
// directory and returns the CSV path.
func filesBatch(t *testing.T, sources map[string]string, rows ...map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range sources {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return writeTestCSV(t, filepath.Join(dir, "files.csv"), fileImportHeader, rows...)
}

func importFiles(im *Importer, coll, csvPath string) (*Report, error) {
	return im.Import(context.Background(), ImportRequest{
		Kind:           models.KindFile,
		CSVPath:        csvPath,
		CollectionPath: coll,
		Actor:          testActor,
	})
}

func TestImportFiles(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")

	body := "fake jpeg bytes"
	csvPath := filesBatch(t, map[string]string{"scan.jpg": body}, fileValues(map[string]string{"public": "Private"}))

	rep, err := importFiles(im, coll, csvPath)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Succeeded != 1 {
		t.Fatalf("Succeeded = %d, want 1 (outcomes %+v)", rep.Succeeded, rep.Outcomes)
	}

	sum := sha1.Sum([]byte(body))
	sha := hex.EncodeToString(sum[:])
	eid, _ := models.ParseEntityID("ddr-test-1-1")
	fid := models.NewFileID(eid, "master", sha)

	f, err := store.New().LoadFile(fid.JSONPath(coll))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if f.SHA1 != sha || f.Size != int64(len(body)) || f.Public != "0" || f.Mimetype != "image/jpeg" {
		t.Errorf("file record = %+v", f)
	}
	if _, err := os.Stat(fid.BinaryPath(coll, ".jpg")); err != nil {
		t.Errorf("binary not placed: %v", err)
	}

	e := loadEntity(t, coll, "ddr-test-1-1")
	if len(e.Files) != 1 || e.Files[0].ID != fid.String() {
		t.Errorf("entity files = %+v", e.Files)
	}
	if diff := cmp.Diff([]string{"addfile " + fid.String()}, git.Calls()); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}

	// Re-import updates in place.
	if _, err := importFiles(im, coll, csvPath); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if e := loadEntity(t, coll, "ddr-test-1-1"); len(e.Files) != 1 {
		t.Errorf("entity files after re-import = %d, want 1", len(e.Files))
	}
	want := []string{"addfile " + fid.String(), "updatefile " + fid.String()}
	if diff := cmp.Diff(want, git.Calls()); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
	binPath := fid.BinaryPath(coll, ".jpg")
	if diff := cmp.Diff([][]string{{binPath}, {binPath}}, git.Annexed()); diff != "" {
		t.Errorf("annexed mismatch (-want +got):\n%s", diff)
	}
}

func TestImportFiles_RetryAfterFailedAdd(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")

	body := "fake jpeg bytes"
	sum := sha1.Sum([]byte(body))
	eid, _ := models.ParseEntityID("ddr-test-1-1")
	fid := models.NewFileID(eid, "master", hex.EncodeToString(sum[:]))
	binPath := fid.BinaryPath(coll, ".jpg")
	csvPath := filesBatch(t, map[string]string{"scan.jpg": body}, fileValues(nil))

	git.fail[fid.String()] = true
	if rep, err := importFiles(im, coll, csvPath); err != nil || rep.Failed != 1 {
		t.Fatalf("first Import() = %+v, %v; want one failed row", rep, err)
	}

	delete(git.fail, fid.String())
	rep, err := importFiles(im, coll, csvPath)
	if err != nil || rep.Succeeded != 1 {
		t.Fatalf("second Import() = %+v, %v; want one imported row", rep, err)
	}
	want := []string{"addfile " + fid.String(), "addfile " + fid.String()}
	if diff := cmp.Diff(want, git.Calls()); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{binPath}, {binPath}}, git.Annexed()); diff != "" {
		t.Errorf("annexed mismatch (-want +got):\n%s", diff)
	}
}

func TestImportFiles_KeepsExistingBinary(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")

	body := "fake jpeg bytes"
	csvPath := filesBatch(t, map[string]string{"scan.jpg": body}, fileValues(nil))
	if _, err := importFiles(im, coll, csvPath); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}

	// Replace the binary with a symlink, the way git annex add leaves it.
	sum := sha1.Sum([]byte(body))
	eid, _ := models.ParseEntityID("ddr-test-1-1")
	binPath := models.NewFileID(eid, "master", hex.EncodeToString(sum[:])).BinaryPath(coll, ".jpg")
	object := filepath.Join(t.TempDir(), "annex-object")
	if err := os.WriteFile(object, []byte(body), 0o444); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(binPath); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(object, binPath); err != nil {
		t.Fatal(err)
	}

	if rep, err := importFiles(im, coll, csvPath); err != nil || rep.Succeeded != 1 {
		t.Fatalf("second Import() = %+v, %v; want one imported row", rep, err)
	}
	info, err := os.Lstat(binPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("annexed binary replaced by a plain file")
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(binPath), ".tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("staged copies left behind: %v", leftovers)
	}
}

func TestImportFiles_MissingEntity(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")

	csvPath := filesBatch(t, map[string]string{"scan.jpg": "x", "b.jpg": "y"},
		fileValues(nil),
		fileValues(map[string]string{"entity_id": "ddr-test-1-2", "basename_orig": "b.jpg"}),
		fileValues(map[string]string{"entity_id": "ddr-test-1-2", "basename_orig": "b.jpg", "role": "mezzanine"}),
	)

	rep, err := importFiles(im, coll, csvPath)
	if !errors.Is(err, ErrReferenceMissing) {
		t.Fatalf("Import() error = %v, want ErrReferenceMissing", err)
	}
	if diff := cmp.Diff([]string{"ddr-test-1-2"}, rep.References.BadEntities); diff != "" {
		t.Errorf("bad entities mismatch (-want +got):\n%s", diff)
	}
	if len(git.Calls()) != 0 {
		t.Error("commits made for aborted batch")
	}
	e := loadEntity(t, coll, "ddr-test-1-1")
	if len(e.Files) != 0 {
		t.Error("entity modified by aborted batch")
	}
	if _, err := os.Stat(filepath.Join(coll, "files", "ddr-test-1-1", "files")); !os.IsNotExist(err) {
		t.Error("file records written for aborted batch")
	}
}

func TestImportFiles_ForeignEntity(t *testing.T) {
	im, git := newTestImporter(t)
	coll := newCollection(t)
	sibling := filepath.Join(filepath.Dir(coll), "ddr-test-2")
	seedEntity(t, sibling, "ddr-test-2-1")
	csvPath := filesBatch(t, map[string]string{"scan.jpg": "x"}, fileValues(map[string]string{"entity_id": "ddr-test-2-1"}))

	_, err := importFiles(im, coll, csvPath)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Import() error = %v, want *ValidationError", err)
	}
	if diff := cmp.Diff([]string{"entity_id"}, ve.Rows[0].Invalid); diff != "" {
		t.Errorf("invalid mismatch (-want +got):\n%s", diff)
	}
	if len(git.Calls()) != 0 {
		t.Errorf("commits = %v, want none", git.Calls())
	}
	if _, err := os.Stat(filepath.Join(sibling, "files", "ddr-test-2-1", "files")); !os.IsNotExist(err) {
		t.Error("file records written into another collection")
	}
}

func TestImportFiles_MissingSource(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")
	csvPath := filesBatch(t, nil, fileValues(nil))

	rep, err := importFiles(im, coll, csvPath)
	if !errors.Is(err, ErrSourceFileMissing) {
		t.Fatalf("Import() error = %v, want ErrSourceFileMissing", err)
	}
	want := []string{filepath.Join(filepath.Dir(csvPath), "scan.jpg")}
	if diff := cmp.Diff(want, rep.References.MissingFiles); diff != "" {
		t.Errorf("missing files mismatch (-want +got):\n%s", diff)
	}
	if rep.AbortCode != "FILE001" {
		t.Errorf("AbortCode = %s, want FILE001", rep.AbortCode)
	}
}

func TestImportFiles_UnreadableSource(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	im, _ := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")
	csvPath := filesBatch(t, map[string]string{"scan.jpg": "secret"}, fileValues(nil))
	src := filepath.Join(filepath.Dir(csvPath), "scan.jpg")
	if err := os.Chmod(src, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(src, 0o644) })

	rep, err := importFiles(im, coll, csvPath)
	if !errors.Is(err, ErrSourceFileUnreadable) {
		t.Fatalf("Import() error = %v, want ErrSourceFileUnreadable", err)
	}
	if diff := cmp.Diff([]string{src}, rep.References.UnreadableFiles); diff != "" {
		t.Errorf("unreadable mismatch (-want +got):\n%s", diff)
	}
	if len(rep.References.MissingFiles) != 0 {
		t.Errorf("MissingFiles = %v, want empty", rep.References.MissingFiles)
	}
}

func TestImportFiles_InvalidRole(t *testing.T) {
	im, _ := newTestImporter(t)
	coll := newCollection(t)
	seedEntity(t, coll, "ddr-test-1-1")
	csvPath := filesBatch(t, map[string]string{"scan.jpg": "x"}, fileValues(map[string]string{"role": "access"}))

	_, err := importFiles(im, coll, csvPath)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Import() error = %v, want *ValidationError", err)
	}
	if diff := cmp.Diff([]string{"role"}, ve.Rows[0].Invalid); diff != "" {
		t.Errorf("invalid mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_ExportReimportExport(t *testing.T) {
	im, _ := newTestImporter(t)
	src := newCollection(t)

	if _, err := importEntities(t, im, src,
		entityValues(map[string]string{
			"id":          "ddr-test-1-1",
			"description": "Issue 1, \"first\" edition",
			"language":    "eng;jpn",
			"topics":      "Camps; Newspapers",
		}),
		entityValues(map[string]string{"id": "ddr-test-1-2", "status": "inprocess", "public": "0"}),
	); err != nil {
		t.Fatalf("seed Import() error = %v", err)
	}

	x := NewExporter(store.New(), t.TempDir())
	first, err := x.Export(context.Background(), models.KindEntity, src, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if first.Records != 2 {
		t.Fatalf("Records = %d, want 2", first.Records)
	}

	dst := newCollection(t)
	if _, err := im.Import(context.Background(), ImportRequest{
		Kind: models.KindEntity, CSVPath: first.Path, CollectionPath: dst, Actor: testActor,
	}); err != nil {
		t.Fatalf("re-Import() error = %v", err)
	}
	second, err := x.Export(context.Background(), models.KindEntity, dst, filepath.Join(t.TempDir(), "again.csv"))
	if err != nil {
		t.Fatalf("second Export() error = %v", err)
	}

	a := readWithout(t, first.Path, "record_lastmod")
	b := readWithout(t, second.Path, "record_lastmod")
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

// readWithout reads a CSV file dropping the named column.
func readWithout(t *testing.T, path, column string) [][]string {
	t.Helper()
	tbl, err := ReadCSVFile(path, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	skip := -1
	for i, h := range tbl.Header {
		if h == column {
			skip = i
		}
	}
	strip := func(cells []string) []string {
		var out []string
		for i, c := range cells {
			if i != skip {
				out = append(out, c)
			}
		}
		return out
	}
	out := [][]string{strip(tbl.Header)}
	for _, r := range tbl.Rows {
		out = append(out, strip(r.Cells))
	}
	return out
}
