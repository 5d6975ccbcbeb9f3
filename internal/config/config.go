// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence is environment (DEVCAM_*) over the YAML file over defaults.
// The file is parsed strictly: unknown keys are an error.
package config

import (
	"path/filepath"
	"time"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-" json:"version,omitempty"`

	Log       LogConfig       `yaml:"log" json:"log"`
	Device    DeviceConfig    `yaml:"device" json:"device"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`
	Sim       SimConfig       `yaml:"sim" json:"sim"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	API       APIConfig       `yaml:"api" json:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Service string `yaml:"service" json:"service"`
}

type DeviceConfig struct {
	ID             string        `yaml:"id" json:"id"`
	OpenTimeout    time.Duration `yaml:"open_timeout" json:"open_timeout"`
	RebuildTimeout time.Duration `yaml:"rebuild_timeout" json:"rebuild_timeout"`
	// PreviewTargets and CaptureTargets are created when the device opens.
	PreviewTargets []model.TargetSpec `yaml:"preview_targets" json:"preview_targets"`
	CaptureTargets []model.TargetSpec `yaml:"capture_targets" json:"capture_targets"`
}

// CaptureConfig holds the knobs applied on hot reload.
type CaptureConfig struct {
	CorrelationTimeout time.Duration `yaml:"correlation_timeout" json:"correlation_timeout"`
	// MaxProbes caps auto-convergence probes per Design; 0 is unbounded.
	MaxProbes int `yaml:"max_probes" json:"max_probes"`
}

// SimConfig configures the simulated device.
type SimConfig struct {
	PostProcessing  bool          `yaml:"post_processing" json:"post_processing"`
	ConfigureDelay  time.Duration `yaml:"configure_delay" json:"configure_delay"`
	FrameDuration   time.Duration `yaml:"frame_duration" json:"frame_duration"`
	PreviewInterval time.Duration `yaml:"preview_interval" json:"preview_interval"`
	FailConfigure   int           `yaml:"fail_configure" json:"fail_configure"`
	FailStills      []int         `yaml:"fail_stills" json:"fail_stills,omitempty"`
	DropBuffers     []int         `yaml:"drop_buffers" json:"drop_buffers,omitempty"`
	FailProbes      bool          `yaml:"fail_probes" json:"fail_probes"`
}

// StorageConfig locates on-disk state. Empty paths are derived from DataDir.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	JournalPath string `yaml:"journal_path" json:"journal_path"`
	OutputDir   string `yaml:"output_dir" json:"output_dir"`
	DesignDir   string `yaml:"design_dir" json:"design_dir"`
}

type APIConfig struct {
	ListenAddr string        `yaml:"listen_addr" json:"listen_addr"`
	RateLimit  int           `yaml:"rate_limit" json:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window" json:"rate_window"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "devcamd"},
		Device: DeviceConfig{
			ID:             "sim0",
			OpenTimeout:    2500 * time.Millisecond,
			RebuildTimeout: 10 * time.Second,
			PreviewTargets: []model.TargetSpec{
				{ID: "preview", Format: model.FormatYUV, Width: 640, Height: 480},
			},
			CaptureTargets: []model.TargetSpec{
				{ID: "still", Format: model.FormatJPEG, Width: 4032, Height: 3024},
			},
		},
		Capture: CaptureConfig{CorrelationTimeout: 5 * time.Minute},
		Sim: SimConfig{
			PostProcessing:  true,
			ConfigureDelay:  20 * time.Millisecond,
			FrameDuration:   5 * time.Millisecond,
			PreviewInterval: 100 * time.Millisecond,
		},
		Storage: StorageConfig{DataDir: "data"},
		API: APIConfig{
			ListenAddr: ":8088",
			RateLimit:  60,
			RateWindow: time.Minute,
		},
		Telemetry: TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SamplingRate: 1},
	}
}

// resolvePaths makes DataDir absolute and derives empty storage paths.
func (c *AppConfig) resolvePaths() {
	if abs, err := filepath.Abs(c.Storage.DataDir); err == nil {
		c.Storage.DataDir = abs
	}
	if c.Storage.JournalPath == "" {
		c.Storage.JournalPath = filepath.Join(c.Storage.DataDir, "journal.sqlite")
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = filepath.Join(c.Storage.DataDir, "captures")
	}
	if c.Storage.DesignDir == "" {
		c.Storage.DesignDir = filepath.Join(c.Storage.DataDir, "designs")
	}
}
