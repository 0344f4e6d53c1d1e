package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so all errors
// share one shape:
//
//	{"error": "insufficient_credit", "message": "insufficient credit: available 5, requested 30"}
//
// The service layer never sees HTTP status codes; the mapping from error
// kind to status lives here.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/recshare/internal/apperror"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, when known
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKind is one row of the error-to-status table. Order matters: the
// first sentinel found in the chain wins.
type errorKind struct {
	target error
	status int
	name   string
}

var errorKinds = []errorKind{
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{apperror.ErrInsufficientCredit, http.StatusBadRequest, "insufficient_credit"},
	{apperror.ErrInvalidPurchaseVariant, http.StatusBadRequest, "invalid_purchase_variant"},
	{apperror.ErrUserRequired, http.StatusBadRequest, "user_required"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrDisabled, http.StatusForbidden, "disabled"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{apperror.ErrDuplicateName, http.StatusUnprocessableEntity, "duplicate_name"},
	{apperror.ErrDuplicateConsumableKind, http.StatusUnprocessableEntity, "duplicate_consumable_kind"},
	{apperror.ErrUnsupportedVariant, http.StatusUnprocessableEntity, "unsupported_variant"},
}

// writeError maps a domain error to its HTTP status and sends it.
//
// errors.Is walks the whole chain, so a service error wrapped as
// fmt.Errorf("service/orchestrator: ...: %w", appErr) still maps to its kind.
// Unknown errors become a generic 500 and their text never reaches the
// client.
func writeError(w http.ResponseWriter, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.target) {
			continue
		}
		resp := ErrorResponse{Error: k.name, Message: err.Error()}

		var appErr *apperror.AppError
		var shortfall *apperror.InsufficientCreditError
		switch {
		case errors.As(err, &appErr):
			resp.Message = appErr.Message
			resp.Field = appErr.Field
		case errors.As(err, &shortfall):
			resp.Message = shortfall.Error()
		}
		writeJSON(w, k.status, resp)
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst as it is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
