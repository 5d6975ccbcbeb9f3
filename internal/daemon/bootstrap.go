// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the capture daemon together and owns its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/devcam/internal/api"
	"github.com/ManuGH/devcam/internal/api/middleware"
	"github.com/ManuGH/devcam/internal/config"
	"github.com/ManuGH/devcam/internal/designs"
	"github.com/ManuGH/devcam/internal/domain/capture/convergence"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/session"
	"github.com/ManuGH/devcam/internal/health"
	"github.com/ManuGH/devcam/internal/infrastructure/device/sim"
	"github.com/ManuGH/devcam/internal/journal"
	"github.com/ManuGH/devcam/internal/sink"
	"github.com/ManuGH/devcam/internal/telemetry"
)

const journalCheckTimeout = 2 * time.Second

// Components are the long-lived objects of one daemon instance.
type Components struct {
	Config    config.AppConfig
	Telemetry *telemetry.Provider
	Journal   *journal.Journal
	Designs   *designs.Store
	Sink      *sink.Sink
	Opener    *sim.Opener
	Capture   *session.Manager
	Health    *health.Manager
	API       *api.Server
}

// simConfig derives the simulated device from the configuration.
func simConfig(cfg config.SimConfig) sim.Config {
	sc := sim.DefaultConfig()
	sc.Capabilities.ManualPostProcessing = cfg.PostProcessing
	sc.ConfigureDelay = cfg.ConfigureDelay
	sc.FrameDuration = cfg.FrameDuration
	sc.PreviewInterval = cfg.PreviewInterval
	sc.Faults = sim.Faults{
		FailConfigure: cfg.FailConfigure,
		FailStills:    cfg.FailStills,
		DropBuffers:   cfg.DropBuffers,
		FailProbes:    cfg.FailProbes,
	}
	return sc
}

// Bootstrap builds every component. On error, whatever was opened is
// released again.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (_ *Components, err error) {
	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			err = errors.Join(err, c.Close(context.WithoutCancel(ctx)))
		}
	}()

	c.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	c.Journal, err = journal.Open(ctx, cfg.Storage.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	c.Designs = designs.NewStore(cfg.Storage.DesignDir)
	c.Sink = sink.New(cfg.Storage.OutputDir, sink.WithNext(journal.Recorder{J: c.Journal}))

	c.Opener = sim.NewOpener(simConfig(cfg.Sim), cfg.Device.ID)
	c.Capture = session.New(session.Config{
		OpenTimeout:        cfg.Device.OpenTimeout,
		RebuildTimeout:     cfg.Device.RebuildTimeout,
		CorrelationTimeout: cfg.Capture.CorrelationTimeout,
		Convergence:        convergence.Policy{MaxProbes: cfg.Capture.MaxProbes},
	}, session.Deps{
		Opener: c.Opener,
		Pairs:  c.Sink,
	})
	c.Opener.SetSink(c.Capture)

	c.Health = health.NewManager(cfg.Version)
	c.Health.RegisterChecker(health.NewPhaseChecker(func() lifecycle.Phase { return c.Capture.Status().Phase }))
	c.Health.RegisterChecker(health.NewFuncChecker("journal", journalCheckTimeout, c.Journal.Check))

	c.API = api.New(api.Deps{
		Capturer: c.Capture,
		Runs:     c.Journal,
		Designs:  c.Designs,
		Health:   c.Health,
		Stack: middleware.StackConfig{
			TracingService: tracingService(cfg),
			EnableLogging:  true,
			RateLimit: middleware.RateLimitConfig{
				RequestLimit: cfg.API.RateLimit,
				WindowSize:   cfg.API.RateWindow,
			},
		},
	})
	return c, nil
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.Log.Service
}

// Close releases the journal and flushes telemetry. The capture manager
// releases its device when its Run returns.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Journal != nil {
		if err := c.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
		c.Journal = nil
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
		c.Telemetry = nil
	}
	return errors.Join(errs...)
}
