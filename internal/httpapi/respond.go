package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps engine errors to responses. Denials never say which
// check failed.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	entry := obs.Logger().WithFields(logrus.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"path":       r.URL.Path,
	})
	switch {
	case errors.Is(err, auth.ErrSessionInvalid):
		entry.WithError(err).Error("authenticated request without session")
		writeError(w, r, http.StatusUnauthorized, "invalid session")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrNotAMember), errors.Is(err, auth.ErrForbidden):
		entry.WithError(err).Info("request denied")
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrRateLimited):
		entry.Warn("attempt budget exhausted")
		writeError(w, r, http.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrUserNotMember):
		writeError(w, r, http.StatusNotFound, "user is not a member")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrUserAlreadyMember):
		writeError(w, r, http.StatusConflict, "user is already a member")
	case errors.Is(err, auth.ErrLastOwner):
		writeError(w, r, http.StatusConflict, "company must keep at least one owner")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, trimPrefix(err))
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, trimPrefix(err))
	default:
		entry.WithError(err).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func trimPrefix(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}
