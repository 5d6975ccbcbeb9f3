// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader resolves an AppConfig from defaults, a file and the environment.
type Loader struct {
	configPath string
	version    string
	lookup     func(string) (string, bool)

	// ConsumedEnvKeys records every environment key the last Load read.
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		lookup:          osLookup,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// WithLookup replaces the environment source.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// Path returns the config file path, possibly empty.
func (l *Loader) Path() string { return l.configPath }

// Load builds the configuration: defaults, then the file (if any), then the
// environment, then derived paths and validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.ConsumedEnvKeys = make(map[string]struct{})
	l.mergeEnv(&cfg)
	cfg.resolvePaths()
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file at path on top of cfg. Unknown fields and
// multiple documents are rejected.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) str(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseEnv(l.lookup, key, def, parseString)
}

func (l *Loader) boolean(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseEnv(l.lookup, key, def, parseBool)
}

func (l *Loader) integer(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseEnv(l.lookup, key, def, parseInt)
}

func (l *Loader) float(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseEnv(l.lookup, key, def, parseFloat)
}

func (l *Loader) duration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseEnv(l.lookup, key, def, parseDuration)
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = l.str("DEVCAM_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.str("DEVCAM_LOG_SERVICE", cfg.Log.Service)

	cfg.Device.ID = l.str("DEVCAM_DEVICE_ID", cfg.Device.ID)
	cfg.Device.OpenTimeout = l.duration("DEVCAM_DEVICE_OPEN_TIMEOUT", cfg.Device.OpenTimeout)
	cfg.Device.RebuildTimeout = l.duration("DEVCAM_DEVICE_REBUILD_TIMEOUT", cfg.Device.RebuildTimeout)

	cfg.Capture.CorrelationTimeout = l.duration("DEVCAM_CORRELATION_TIMEOUT", cfg.Capture.CorrelationTimeout)
	cfg.Capture.MaxProbes = l.integer("DEVCAM_MAX_PROBES", cfg.Capture.MaxProbes)

	cfg.Sim.PostProcessing = l.boolean("DEVCAM_SIM_POST_PROCESSING", cfg.Sim.PostProcessing)
	cfg.Sim.PreviewInterval = l.duration("DEVCAM_SIM_PREVIEW_INTERVAL", cfg.Sim.PreviewInterval)

	cfg.Storage.DataDir = l.str("DEVCAM_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.JournalPath = l.str("DEVCAM_JOURNAL_PATH", cfg.Storage.JournalPath)
	cfg.Storage.OutputDir = l.str("DEVCAM_OUTPUT_DIR", cfg.Storage.OutputDir)
	cfg.Storage.DesignDir = l.str("DEVCAM_DESIGN_DIR", cfg.Storage.DesignDir)

	cfg.API.ListenAddr = l.str("DEVCAM_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.integer("DEVCAM_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateWindow = l.duration("DEVCAM_RATE_WINDOW", cfg.API.RateWindow)

	cfg.Telemetry.Enabled = l.boolean("DEVCAM_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.str("DEVCAM_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.str("DEVCAM_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.float("DEVCAM_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// UnknownEnvKeys returns DEVCAM_* variables in environ that Load did not
// read, sorted. Typos surface here instead of being ignored silently.
func (l *Loader) UnknownEnvKeys(environ []string) []string {
	var out []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
