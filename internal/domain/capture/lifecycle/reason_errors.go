// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
)

type reasonError struct {
	reason model.ReasonCode
	detail string
	err    error
}

func (e *reasonError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.reason)))
	if e.detail != "" {
		b.WriteString(": ")
		b.WriteString(e.detail)
	}
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *reasonError) Is(target error) bool {
	if target == nil {
		return false
	}
	class := ReasonErrorClass(e.reason)
	return class != nil && target == class
}

func (e *reasonError) Unwrap() error {
	return e.err
}

// NewReasonError builds a classified error. detail is a short human hint;
// err is the optional cause.
func NewReasonError(reason model.ReasonCode, detail string, err error) error {
	return &reasonError{reason: reason, detail: sanitizeDetail(detail), err: err}
}

// WrapWithReasonClass classifies err unless it already carries a reason.
func WrapWithReasonClass(err error) error {
	if err == nil {
		return nil
	}
	var rerr *reasonError
	if errors.As(err, &rerr) {
		return err
	}
	return &reasonError{reason: ClassifyReason(err), err: err}
}

// ClassifyReason derives a reason code from an arbitrary error.
func ClassifyReason(err error) model.ReasonCode {
	if err == nil {
		return ""
	}
	if reason, _, ok := ReasonFromError(err); ok {
		return reason
	}
	switch {
	case errors.Is(err, ports.ErrDeviceBusy), errors.Is(err, ports.ErrDeviceNotFound):
		return model.RDeviceUnavailable
	case errors.Is(err, ports.ErrSessionClosed):
		return model.RCaptureFailed
	case errors.Is(err, context.DeadlineExceeded):
		return model.RGateTimeout
	case errors.Is(err, context.Canceled):
		return model.RClosed
	}
	return model.RUnknown
}

// ReasonFromError extracts the reason code and detail of a classified error.
func ReasonFromError(err error) (model.ReasonCode, string, bool) {
	var rerr *reasonError
	if errors.As(err, &rerr) {
		detail := rerr.detail
		if detail == "" && rerr.err != nil {
			detail = sanitizeDetail(rerr.err.Error())
		}
		return rerr.reason, detail, true
	}
	return "", "", false
}

func sanitizeDetail(detail string) string {
	if detail == "" {
		return ""
	}
	const maxLen = 160
	clean := strings.ReplaceAll(detail, "\n", " ")
	if len(clean) > maxLen {
		return clean[:maxLen] + "..."
	}
	return clean
}
