// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/config"
	"github.com/ManuGH/devcam/internal/log"
)

// PerformStartupChecks prepares the storage directories and validates the
// parts of the configuration that only fail at runtime.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	dirs := []struct{ name, path string }{
		{"data", cfg.Storage.DataDir},
		{"output", cfg.Storage.OutputDir},
		{"design", cfg.Storage.DesignDir},
		{"journal", filepath.Dir(cfg.Storage.JournalPath)},
	}
	for _, d := range dirs {
		if err := ensureWritableDir(logger, d.path); err != nil {
			return fmt.Errorf("%s directory check failed: %w", d.name, err)
		}
	}

	if err := checkListenAddr(logger, cfg.API.ListenAddr); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.Storage.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().Str("data_dir", cfg.Storage.DataDir).Msg("data directory is under temp; captures may be lost on reboot")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func ensureWritableDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(probe)

	logger.Debug().Str("path", path).Msg("directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	logger.Debug().Str("addr", addr).Msg("API listen address is valid")
	return nil
}
