package web

import (
	"net/http"
	"os"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ddrcsv/internal/web/templates"
)

// handleJobPage renders a background batch for a browser.
func (s *Server) handleJobPage(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	templ.Handler(templates.JobPage(st)).ServeHTTP(w, r)
}

func modTime(f *os.File) time.Time {
	if fi, err := f.Stat(); err == nil {
		return fi.ModTime()
	}
	return time.Time{}
}
