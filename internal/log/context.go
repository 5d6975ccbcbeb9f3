// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "request_id"
	correlationIDKey ctxKey = "correlation_id"
	runIDKey         ctxKey = "run_id"
)

// contextFields maps context keys to the log field they populate, in the
// order they appear on a line.
var contextFields = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{correlationIDKey, FieldCorrelationID},
	{runIDKey, FieldRunID},
}

func withID(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the HTTP request ID in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestIDKey, id)
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return withID(ctx, correlationIDKey, id)
}

// ContextWithRunID stores the capture run ID in ctx.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return withID(ctx, runIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string     { return idFrom(ctx, requestIDKey) }
func CorrelationIDFromContext(ctx context.Context) string { return idFrom(ctx, correlationIDKey) }
func RunIDFromContext(ctx context.Context) string         { return idFrom(ctx, runIDKey) }

// WithContext adds the IDs carried by ctx to logger. The logger is returned
// unchanged when ctx carries none.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	var b *zerolog.Context
	for _, f := range contextFields {
		id := idFrom(ctx, f.key)
		if id == "" {
			continue
		}
		if b == nil {
			c := logger.With()
			b = &c
		}
		*b = b.Str(f.field, id)
	}
	if b == nil {
		return logger
	}
	return b.Logger()
}

// WithComponentFromContext is WithContext on the ctx logger plus a
// component field.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := WithContext(ctx, *FromContext(ctx))
	return l.With().Str(FieldComponent, component).Logger()
}

// FromContext returns the logger attached to ctx, falling back to Base.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	b := Base()
	return &b
}
