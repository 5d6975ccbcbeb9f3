// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/devcam/internal/designs"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/template"
	"github.com/ManuGH/devcam/internal/journal"
	"github.com/ManuGH/devcam/internal/log"
)

// errInvalidRequest marks malformed request bodies.
var errInvalidRequest = errors.New("invalid request")

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status and reason code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, designs.ErrInvalidDesign),
		errors.Is(err, designs.ErrInvalidName),
		errors.Is(err, template.ErrInvalidCount),
		errors.Is(err, template.ErrInvalidBound):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, designs.ErrNotFound),
		errors.Is(err, journal.ErrNotFound),
		errors.Is(err, template.ErrUnknownTemplate):
		return http.StatusNotFound, "NOT_FOUND"
	}

	reason := string(lifecycle.ClassifyReason(err))
	switch {
	case errors.Is(err, lifecycle.ErrPrecondition):
		return http.StatusConflict, reason
	case errors.Is(err, lifecycle.ErrResourceUnavailable),
		errors.Is(err, lifecycle.ErrCapabilityMissing),
		errors.Is(err, lifecycle.ErrSessionConfigureFailed),
		errors.Is(err, lifecycle.ErrDeviceLost),
		errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable, reason
	case errors.Is(err, lifecycle.ErrCaptureFailed):
		return http.StatusBadGateway, reason
	}
	return http.StatusInternalServerError, reason
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, reason := statusFor(err)
	if code >= 500 {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Str(log.FieldReason, reason).Int("status", code).Msg("request failed")
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error(), Reason: reason})
}
