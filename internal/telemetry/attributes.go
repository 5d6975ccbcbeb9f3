// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every span the daemon emits.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPRouteKey      = "http.route"
	HTTPStatusCodeKey = "http.status_code"

	// Capture attributes
	RunIDKey       = "devcam.run_id"
	DesignKey      = "devcam.design"
	ExposuresKey   = "devcam.exposures"
	ConvergenceKey = "devcam.convergence"
	ProbeKey       = "devcam.probe"
	AFStateKey     = "devcam.af_state"
	AEStateKey     = "devcam.ae_state"
	RequestsKey    = "devcam.requests"
	CompletedKey   = "devcam.completed"
	FailedKey      = "devcam.failed"

	// Device attributes
	DeviceIDKey = "devcam.device_id"
	PhaseKey    = "devcam.phase"

	// Template attributes
	TemplateKey = "devcam.template"

	// Error attributes
	ErrorKey       = "error"
	ErrorReasonKey = "error.reason"
)

func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// DesignAttributes describes a Design run at span start.
func DesignAttributes(runID, design string, exposures int, convergence string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if design != "" {
		attrs = append(attrs, attribute.String(DesignKey, design))
	}
	attrs = append(attrs, attribute.Int(ExposuresKey, exposures))
	if convergence != "" {
		attrs = append(attrs, attribute.String(ConvergenceKey, convergence))
	}
	return attrs
}

// ProbeAttributes annotates one convergence probe result.
func ProbeAttributes(index int, af, ae string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(ProbeKey, index),
		attribute.String(AFStateKey, af),
		attribute.String(AEStateKey, ae),
	}
}

// OutcomeAttributes summarizes the frames of a finished burst.
func OutcomeAttributes(completed, failed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(CompletedKey, completed),
		attribute.Int(FailedKey, failed),
	}
}

// ErrorAttributes marks a span as failed with a reason code.
func ErrorAttributes(reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Bool(ErrorKey, true)}
	if reason != "" {
		attrs = append(attrs, attribute.String(ErrorReasonKey, reason))
	}
	return attrs
}
