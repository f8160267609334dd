package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code. The data is
// serialized and Content-Type is set automatically.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("json encode failed", "component", "httputil", "error", err.Error())
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a JSON error response. Use for client errors (4xx).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError writes a 500 error. Logs the real error but returns a
// generic message to the client (never leak internals).
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("internal error", "component", "httputil", "error", err.Error())
	Error(w, http.StatusInternalServerError, "internal server error")
}

// errorCodes maps the domain taxonomy onto HTTP statuses and stable codes.
// Order matters: the more specific sentinels come before ErrConflict.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrNotEligible, http.StatusConflict, "not_eligible"},
	{domain.ErrAlreadyIssued, http.StatusConflict, "already_issued"},
	{domain.ErrAlreadyPromoted, http.StatusConflict, "already_promoted"},
	{domain.ErrCadenceExhausted, http.StatusConflict, "cadence_exhausted"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrDuplicate, http.StatusOK, "duplicate"},
	{domain.ErrTransientSend, http.StatusServiceUnavailable, "transient_send"},
	{domain.ErrNoTemplate, http.StatusUnprocessableEntity, "no_template"},
}

// FromError writes the response matching err's place in the domain error
// taxonomy. Unclassified errors become a 500.
func FromError(w http.ResponseWriter, err error) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			JSON(w, ec.status, ErrorResponse{Error: err.Error(), Code: ec.code})
			return
		}
	}
	InternalError(w, err)
}

// Decode reads JSON from the request body into dst.
// Returns false and writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
