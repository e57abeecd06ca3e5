package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/recordstore"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func validationError(w http.ResponseWriter, fields application.FieldErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "please fix the highlighted fields",
			"type":    "validation_error",
		},
		"fields": fields,
	})
}

// writeError maps a domain error onto the HTTP error envelope. what names
// the thing that failed, e.g. "application".
func writeError(w http.ResponseWriter, err error, what string) {
	var ve *recordstore.ValidationError
	var fe application.FieldErrors
	switch {
	case errors.Is(err, recordstore.ErrUnauthenticated):
		httpError(w, http.StatusUnauthorized, "authentication_error", "sign in required")
	case errors.As(err, &ve):
		validationError(w, ve.Fields)
	case errors.As(err, &fe):
		validationError(w, fe)
	default:
		switch recordstore.KindOf(err) {
		case recordstore.NotFound:
			httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
		case recordstore.AlreadyExists:
			httpError(w, http.StatusConflict, "conflict_error", "%s already exists", what)
		case recordstore.PermissionDenied:
			httpError(w, http.StatusForbidden, "permission_error", "not allowed to modify %s", what)
		default:
			slog.Error("request failed", "what", what, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", what, err)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
