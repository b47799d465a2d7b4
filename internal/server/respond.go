package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/backend"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/schema"
)

const maxBody = 4 << 20

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, remote.Envelope{Success: false, Error: msg, Code: code})
}

func ok() remote.Envelope {
	return remote.Envelope{Success: true}
}

// statusOf maps a backend error to an HTTP status and wire code.
func statusOf(err error) (int, string) {
	switch {
	case attendance.IsValidation(err):
		return http.StatusBadRequest, remote.CodeValidation
	case errors.Is(err, schema.ErrNoMeetingToday):
		return http.StatusNotFound, remote.CodeNoMeetingToday
	case errors.Is(err, backend.ErrPlanNotFound),
		errors.Is(err, backend.ErrLotNotFound),
		errors.Is(err, backend.ErrUserNotFound):
		return http.StatusNotFound, remote.CodeNotFound
	case errors.Is(err, backend.ErrUserExists):
		return http.StatusConflict, remote.CodeConflict
	case errors.Is(err, backend.ErrInvalidCredentials):
		return http.StatusUnauthorized, remote.CodeAuthRejected
	default:
		return http.StatusInternalServerError, remote.CodeInternal
	}
}

// fail writes err as an envelope. Internal errors are logged and their
// text withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
