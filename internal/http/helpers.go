package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"milklog/internal/auth"
	"milklog/internal/core"
	"milklog/internal/storage"
)

// errorResponse is the JSON error envelope for every API failure.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain and auth sentinels to the API status taxonomy:
// 400 validation, 401 no session, 403 read-only month, 409 duplicates.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, core.ErrReadOnlyMonth):
		writeJSONError(w, http.StatusForbidden, "Read only")
	case errors.Is(err, storage.ErrNameTaken),
		errors.Is(err, storage.ErrPINTaken):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrNegativePrice),
		errors.Is(err, core.ErrInvalidTime),
		errors.Is(err, auth.ErrInvalidPIN),
		errors.Is(err, auth.ErrInvalidName):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
	}
}

// decodeJSON reads a request body into v, failing on unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
