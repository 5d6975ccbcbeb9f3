// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/devcam/internal/config"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	"github.com/ManuGH/devcam/internal/domain/capture/session"
	"github.com/ManuGH/devcam/internal/infrastructure/device/sim"
	"github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// App runs the capture manager, the HTTP server and config hot reload
// until its context ends.
type App struct {
	c      *Components
	holder *config.Holder
	server Manager
	logger zerolog.Logger

	// hup delivers reload requests; nil disables SIGHUP handling.
	hup <-chan os.Signal
}

// NewApp prepares an App. holder may be nil when hot reload is not wanted.
func NewApp(c *Components, holder *config.Holder) (*App, error) {
	if c == nil || c.Capture == nil || c.API == nil {
		return nil, ErrMissingComponents
	}
	srvCfg := DefaultServerConfig(c.Config.API.ListenAddr)
	server, err := NewManager(srvCfg, c.API)
	if err != nil {
		return nil, err
	}
	server.RegisterShutdownHook("components", c.Close)
	return &App{c: c, holder: holder, server: server, logger: log.WithComponent("daemon")}, nil
}

// Addr is the bound HTTP address once the server is listening.
func (a *App) Addr() string { return a.server.Addr() }

// Run blocks until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	if a.hup == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGHUP)
		defer signal.Stop(ch)
		a.hup = ch
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.c.Capture.Run(gctx) })
	g.Go(func() error { return a.openDevice(gctx) })
	g.Go(func() error { return a.server.Start(gctx) })
	if a.holder != nil {
		if err := a.holder.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Msg("config watcher disabled")
		}
		g.Go(func() error { a.applyReloads(gctx); return nil })
	}

	a.logger.Info().
		Str("device", a.c.Config.Device.ID).
		Str("listen", a.c.Config.API.ListenAddr).
		Msg("daemon started")

	runErr := g.Wait()
	if a.holder != nil {
		a.holder.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultServerConfig("").ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	a.logger.Info().Err(runErr).Msg("daemon stopped")
	return runErr
}

// openDevice opens the configured device and installs its targets once
// the manager loop is running.
func (a *App) openDevice(ctx context.Context) error {
	select {
	case <-a.c.Capture.Started():
	case <-ctx.Done():
		return nil
	}
	dev := a.c.Config.Device
	if err := a.c.Capture.Open(ctx, dev.ID); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open device %s: %w", dev.ID, err)
	}
	if err := a.c.Capture.SetPreviewTargets(ctx, targets(dev.PreviewTargets)); err != nil && ctx.Err() == nil {
		return fmt.Errorf("preview targets: %w", err)
	}
	if err := a.c.Capture.SetCaptureTargets(ctx, targets(dev.CaptureTargets)); err != nil && ctx.Err() == nil {
		return fmt.Errorf("capture targets: %w", err)
	}
	return nil
}

func targets(specs []model.TargetSpec) []ports.Target {
	out := make([]ports.Target, 0, len(specs))
	for _, spec := range specs {
		out = append(out, sim.NewTarget(spec))
	}
	return out
}

// applyReloads pushes hot-reloadable settings into the running daemon.
func (a *App) applyReloads(ctx context.Context) {
	updates := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.hup:
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Error().Err(err).Msg("reload on SIGHUP failed")
			}
		case cfg := <-updates:
			a.apply(ctx, cfg)
		}
	}
}

func (a *App) apply(ctx context.Context, cfg config.AppConfig) {
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("log level not applied")
	}
	err := a.c.Capture.UpdateTuning(ctx, session.Tuning{
		CorrelationTimeout: cfg.Capture.CorrelationTimeout,
		MaxProbes:          cfg.Capture.MaxProbes,
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Warn().Err(err).Msg("capture tuning not applied")
		return
	}
	a.logger.Info().
		Str("log_level", cfg.Log.Level).
		Dur("correlation_timeout", cfg.Capture.CorrelationTimeout).
		Int("max_probes", cfg.Capture.MaxProbes).
		Msg("configuration applied")
}
