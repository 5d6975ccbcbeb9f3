// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
)

// Session is a simulated capture session.
type Session struct {
	id    string
	dev   *Device
	specs map[model.TargetID]model.TargetSpec

	mu     sync.Mutex
	closed bool
	repeat chan struct{}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Capture(_ context.Context, req model.Request) error {
	if s.isClosed() {
		return ports.ErrSessionClosed
	}
	return s.dev.enqueue(func() { s.dev.frame(s, req) })
}

func (s *Session) CaptureBurst(ctx context.Context, reqs []model.Request) error {
	for _, req := range reqs {
		if err := s.Capture(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// SetRepeating replaces the repeating request. Frames are produced every
// PreviewInterval; with no interval a single frame is produced.
func (s *Session) SetRepeating(ctx context.Context, req model.Request) error {
	if s.isClosed() {
		return ports.ErrSessionClosed
	}
	_ = s.StopRepeating()
	interval := s.dev.cfg.PreviewInterval
	if interval <= 0 {
		return s.Capture(ctx, req)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.repeat = stop
	s.mu.Unlock()

	s.dev.wg.Add(1)
	go func() {
		defer s.dev.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-s.dev.stop:
				return
			case <-ticker.C:
				if s.dev.backlog() >= maxBacklog {
					continue
				}
				if s.dev.enqueue(func() { s.dev.frame(s, req) }) != nil {
					return
				}
			}
		}
	}()
	return nil
}

func (s *Session) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repeat != nil {
		close(s.repeat)
		s.repeat = nil
	}
	return nil
}

// Close stops the session; queued requests of a closed session are dropped.
func (s *Session) Close() error {
	_ = s.StopRepeating()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	_ = s.dev.enqueue(func() {
		s.dev.emitSession(ports.SessionEvent{Kind: ports.SessionClosed, SessionID: s.id})
	})
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ ports.CaptureSession = (*Session)(nil)
