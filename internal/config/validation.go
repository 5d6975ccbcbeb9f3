// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		add("log.level %q", cfg.Log.Level)
	}
	if strings.TrimSpace(cfg.Device.ID) == "" {
		add("device.id is required")
	}
	if cfg.Device.OpenTimeout <= 0 {
		add("device.open_timeout must be positive")
	}
	if cfg.Device.RebuildTimeout <= 0 {
		add("device.rebuild_timeout must be positive")
	}
	if len(cfg.Device.PreviewTargets) == 0 || len(cfg.Device.CaptureTargets) == 0 {
		add("device needs at least one preview and one capture target")
	}
	seen := make(map[model.TargetID]bool)
	for _, t := range append(append([]model.TargetSpec(nil), cfg.Device.PreviewTargets...), cfg.Device.CaptureTargets...) {
		if t.ID == "" || seen[t.ID] {
			add("device target id %q is empty or duplicated", t.ID)
		}
		seen[t.ID] = true
		switch t.Format {
		case model.FormatYUV, model.FormatJPEG, model.FormatRAW:
		default:
			add("device target %q: unknown format %q", t.ID, t.Format)
		}
		if t.BuffersPerExposure < 0 {
			add("device target %q: buffers_per_exposure must not be negative", t.ID)
		}
	}
	if cfg.Capture.CorrelationTimeout <= 0 {
		add("capture.correlation_timeout must be positive")
	}
	if cfg.Capture.MaxProbes < 0 {
		add("capture.max_probes must not be negative")
	}
	if cfg.Sim.ConfigureDelay < 0 || cfg.Sim.FrameDuration < 0 || cfg.Sim.PreviewInterval < 0 {
		add("sim delays must not be negative")
	}
	if cfg.Sim.FailConfigure < 0 {
		add("sim.fail_configure must not be negative")
	}
	if cfg.Storage.DataDir == "" {
		add("storage.data_dir is required")
	}
	if cfg.API.ListenAddr == "" {
		add("api.listen_addr is required")
	}
	if cfg.API.RateLimit < 0 {
		add("api.rate_limit must not be negative")
	}
	if cfg.API.RateLimit > 0 && cfg.API.RateWindow <= 0 {
		add("api.rate_window must be positive when rate_limit is set")
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter %q (want grpc or http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.sampling_rate must be within [0, 1]")
	}
	return errors.Join(errs...)
}
