// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
)

// Opener hands out simulated devices. Each id can be held once.
type Opener struct {
	mu    sync.Mutex
	cfg   Config
	known map[string]bool
	open  map[string]*Device
	sink  ports.ImageSink
}

// NewOpener returns an opener for the given device ids.
func NewOpener(cfg Config, ids ...string) *Opener {
	if len(ids) == 0 {
		ids = []string{"sim0"}
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return &Opener{cfg: cfg, known: known, open: make(map[string]*Device)}
}

// SetSink sets where devices opened afterwards deliver image buffers.
func (o *Opener) SetSink(sink ports.ImageSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = sink
}

// SetFaults replaces the fault plan for devices opened afterwards.
func (o *Opener) SetFaults(f Faults) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Faults = f
}

func (o *Opener) Open(_ context.Context, id string, ev ports.Events) (ports.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.known[id] {
		return nil, fmt.Errorf("%w: %s", ports.ErrDeviceNotFound, id)
	}
	if _, held := o.open[id]; held {
		return nil, fmt.Errorf("%w: %s", ports.ErrDeviceBusy, id)
	}
	d := newDevice(id, o.cfg, ev, o.sink, func() { o.release(id) })
	o.open[id] = d
	logger := dlog.WithComponent("sim")
	logger.Debug().Str(dlog.FieldDeviceID, id).Msg("simulated device opened")
	return d, nil
}

// Disconnect simulates the device being unplugged.
func (o *Opener) Disconnect(id string) error {
	o.mu.Lock()
	d, ok := o.open[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrDeviceNotFound, id)
	}
	d.disconnect()
	return nil
}

// Held reports whether id is currently open.
func (o *Opener) Held(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.open[id]
	return ok
}

func (o *Opener) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.open, id)
}

var _ ports.DeviceOpener = (*Opener)(nil)
