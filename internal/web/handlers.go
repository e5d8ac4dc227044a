package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

const maxBodySize = 1 << 20

// importBody names a CSV already on the server and the collection it
// belongs to. Git identity is required unless the batch is only checked.
type importBody struct {
	Collection string `json:"collection_id"`
	CSVPath    string `json:"csv_path"`
	GitName    string `json:"git_name"`
	GitMail    string `json:"git_mail"`
}

type exportBody struct {
	Collection string `json:"collection_id"`
	Path       string `json:"path"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func kindParam(r *http.Request) (models.Kind, error) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return kind, nil
}

// importRequest validates body and resolves the collection path.
func (s *Server) importRequest(r *http.Request, kind models.Kind, body importBody, dryRun bool) (core.ImportRequest, error) {
	var missing []string
	if body.Collection == "" {
		missing = append(missing, "collection_id")
	}
	if body.CSVPath == "" {
		missing = append(missing, "csv_path")
	}
	if !dryRun {
		if body.GitName == "" {
			missing = append(missing, "git_name")
		}
		if body.GitMail == "" {
			missing = append(missing, "git_mail")
		}
	}
	if len(missing) > 0 {
		return core.ImportRequest{}, fmt.Errorf("%w: missing %s", errBadRequest, strings.Join(missing, ", "))
	}
	if !filepath.IsAbs(body.CSVPath) {
		return core.ImportRequest{}, fmt.Errorf("%w: csv_path must be absolute", errBadRequest)
	}

	coll, err := s.service.CollectionPath(body.Collection)
	if err != nil {
		return core.ImportRequest{}, err
	}
	return core.ImportRequest{
		Kind:           kind,
		CSVPath:        filepath.Clean(body.CSVPath),
		CollectionPath: coll,
		Actor:          dvcs.Actor{Name: body.GitName, Email: body.GitMail},
		DryRun:         dryRun,
	}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.Limiter().Status(),
	})
}

// handleVocab lists the permitted values of every controlled vocabulary.
func (s *Server) handleVocab(w http.ResponseWriter, r *http.Request) {
	vs := s.service.Vocab()
	out := make(map[string][]vocab.Choice)
	for _, name := range vs.Names() {
		out[name] = vs.Choices(name)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	spec, err := s.service.Spec(kind)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":       spec.Kind(),
		"fields":     spec.Fields(),
		"exceptions": spec.Exceptions(),
	})
}

// handleTemplate serves an empty import CSV for a kind.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	header, err := s.service.TemplateHeader(kind)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(kind)+"-template.csv"))
	cw := core.NewCSVWriter(w)
	if err := cw.Write(header); err == nil {
		_ = cw.Flush()
	}
}

// handleImport starts a background batch and answers 202 with its job ID.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	var body importBody
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	req, err := s.importRequest(r, kind, body, false)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	id := s.service.Start(WithRequestMetadata(r.Context(), r), req)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     id,
		"status_url": "/api/jobs/" + id,
	})
}

// handleCheck validates a batch synchronously without writing anything.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	var body importBody
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	req, err := s.importRequest(r, kind, body, true)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	rep, err := s.service.Check(WithRequestMetadata(r.Context(), r), req)
	if err != nil {
		s.respondError(w, r, err, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleExport writes a collection's records to CSV. With no path in the
// body the CSV is written to the default location and returned as the
// response body; otherwise the result is described as JSON. An empty
// collection answers 204.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	var body exportBody
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if body.Collection == "" {
		s.respondError(w, r, fmt.Errorf("%w: missing collection_id", errBadRequest), nil)
		return
	}
	if body.Path != "" && !insideDir(s.cfg.Collection.ExportDir, body.Path) {
		s.respondError(w, r, fmt.Errorf("%w: path must be an absolute path under %s", errBadRequest, s.cfg.Collection.ExportDir), nil)
		return
	}
	coll, err := s.service.CollectionPath(body.Collection)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	res, err := s.service.Export(r.Context(), kind, coll, body.Path)
	if errors.Is(err, core.ErrNothingWritten) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	if body.Path != "" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	f, err := os.Open(res.Path)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.Path)))
	w.Header().Set("X-Record-Count", strconv.Itoa(res.Records))
	http.ServeContent(w, r, filepath.Base(res.Path), modTime(f), f)
}

// insideDir reports whether path is an absolute file path below dir.
func insideDir(dir, path string) bool {
	if dir == "" || !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// handleHistory lists past batches, optionally for one collection.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.respondError(w, r, fmt.Errorf("%w: limit must be 1-500", errBadRequest), nil)
			return
		}
		limit = n
	}

	entries, err := s.service.History(r.Context(), r.URL.Query().Get("collection"), limit)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
