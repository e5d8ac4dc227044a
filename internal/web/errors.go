package web

// errors.go turns core errors into responses. The technical error is logged
// with the request ID; the client gets the mapped user message, plus the
// batch report when the error aborted one.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Action  string       `json:"action,omitempty"`
	Code    string       `json:"code"`
	Report  *core.Report `json:"report,omitempty"`
}

// statusFor picks the HTTP status of a core error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCollectionLocked):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrInvalidID), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrMalformedCSV),
		errors.Is(err, core.ErrSchemaMismatch),
		errors.Is(err, core.ErrValidationFailure),
		errors.Is(err, core.ErrReferenceMissing),
		errors.Is(err, core.ErrSourceFileMissing),
		errors.Is(err, core.ErrSourceFileUnreadable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// respondError logs err and writes the mapped user message. rep, when
// non-nil, is included so clients see every row problem.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, rep *core.Report) {
	status := statusFor(err)
	msg := core.MapError(err)
	if errors.Is(err, errBadRequest) {
		msg = core.UserMessage{Message: "The request is invalid", Action: "Check the request body and parameters", Code: "REQ400"}
	}

	log := logging.FromContext(r.Context())
	if status >= 500 {
		log.Error("request error", "path", r.URL.Path, "method", r.Method, "status", status, "error", err.Error(), "code", msg.Code)
	} else {
		log.Warn("request error", "path", r.URL.Path, "method", r.Method, "status", status, "error", err.Error(), "code", msg.Code)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}

	if !wantsJSON(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
		return
	}

	text := msg.Message
	if core.IsUserFacing(err) || errors.Is(err, errBadRequest) {
		text = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   text,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Report:  rep,
	})
}

// wantsJSON is true for API routes and clients that ask for JSON.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
