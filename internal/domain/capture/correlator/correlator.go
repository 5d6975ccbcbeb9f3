// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package correlator pairs frame metadata with image buffers by frame id.
//
// Metadata and buffers are delivered on different goroutines and in no
// particular order. A run counts every recorded event down from the
// expected total; once it reaches zero, or the wait times out, Match sorts
// both sides by frame id and pairs them in one linear scan.
package correlator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
)

// DefaultTimeout bounds AwaitCompletion when the caller passes zero.
const DefaultTimeout = 5 * time.Minute

var (
	ErrNoActiveRun     = errors.New("correlator: no active run")
	ErrRunInProgress   = errors.New("correlator: run already in progress")
	ErrInvalidExpected = errors.New("correlator: expected count must not be negative")
)

type run struct {
	info      model.RunInfo
	remaining int
	metadata  []model.FrameMetadata
	buffers   []model.FrameBuffer
	done      chan struct{}
	released  bool
	aborted   bool
	waited    time.Duration
}

func (r *run) countDown() {
	if r.remaining == 0 {
		return
	}
	r.remaining--
	if r.remaining == 0 {
		r.release()
	}
}

func (r *run) release() {
	if !r.released {
		r.released = true
		close(r.done)
	}
}

// Correlator is safe for concurrent use. At most one run is active at a time.
type Correlator struct {
	mu     sync.Mutex
	active *run
	logger zerolog.Logger
}

// New returns an idle correlator.
func New() *Correlator {
	return &Correlator{logger: dlog.WithComponent("correlator")}
}

// Begin starts a run expecting info.Expected events in total.
func (c *Correlator) Begin(info model.RunInfo) error {
	if info.Expected < 0 {
		return ErrInvalidExpected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return ErrRunInProgress
	}
	r := &run{
		info:      info,
		remaining: info.Expected,
		metadata:  make([]model.FrameMetadata, 0, info.Length),
		buffers:   make([]model.FrameBuffer, 0, max(info.Expected-info.Length, 0)),
		done:      make(chan struct{}),
	}
	if r.remaining == 0 {
		r.release()
	}
	c.active = r
	c.logger.Debug().Str(dlog.FieldRunID, info.ID).Int(dlog.FieldExpected, info.Expected).Msg("correlation started")
	return nil
}

// Active reports whether a run is in progress.
func (c *Correlator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// RecordMetadata adds one metadata entry to the active run.
func (c *Correlator) RecordMetadata(md model.FrameMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		metrics.IncCorrelatorEvent("metadata", "dropped")
		return ErrNoActiveRun
	}
	c.active.metadata = append(c.active.metadata, md)
	c.active.countDown()
	metrics.IncCorrelatorEvent("metadata", "recorded")
	return nil
}

// RecordBuffer adds one buffer to the active run.
func (c *Correlator) RecordBuffer(buf model.FrameBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		metrics.IncCorrelatorEvent("buffer", "dropped")
		return ErrNoActiveRun
	}
	c.active.buffers = append(c.active.buffers, buf)
	c.active.countDown()
	metrics.IncCorrelatorEvent("buffer", "recorded")
	return nil
}

// Forfeit accounts n expected events that will never arrive, such as the
// metadata and buffers of a frame the device reported as failed.
func (c *Correlator) Forfeit(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	for i := 0; i < n; i++ {
		c.active.countDown()
	}
}

// Remaining returns the outstanding event count of the active run.
func (c *Correlator) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0
	}
	return c.active.remaining
}

// AwaitCompletion blocks until every expected event was recorded, the
// timeout elapses, ctx ends, or the run is aborted. It reports whether the
// run is still incomplete; an incomplete run is not an error. Without an
// active run it returns false immediately.
func (c *Correlator) AwaitCompletion(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return false
	}

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	complete := false
	select {
	case <-r.done:
		complete = true
	case <-timer.C:
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	r.waited = time.Since(start)
	complete = complete && r.remaining == 0
	if !complete {
		c.logger.Warn().
			Str(dlog.FieldRunID, r.info.ID).
			Int("remaining", r.remaining).
			Bool("aborted", r.aborted).
			Dur("waited", r.waited).
			Msg("correlation incomplete")
	}
	return !complete
}

// Abort releases any AwaitCompletion waiter. The run stays active until
// Match so that partial results can still be reported.
func (c *Correlator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.aborted {
		return
	}
	c.active.aborted = true
	c.active.release()
}

// Match pairs the recorded events, reports each pair and then the summary
// to h, and ends the run. The handler runs outside the lock.
func (c *Correlator) Match(h ports.PairHandler) (model.CorrelationReport, error) {
	c.mu.Lock()
	r := c.active
	c.active = nil
	c.mu.Unlock()
	if r == nil {
		return model.CorrelationReport{}, ErrNoActiveRun
	}

	pairs, leftMeta, leftBuf := pair(r.metadata, r.buffers)
	report := model.CorrelationReport{
		Run:               r.info,
		Pairs:             len(pairs),
		UnmatchedMetadata: leftMeta,
		TimedOut:          r.remaining > 0 && !r.aborted,
		Aborted:           r.aborted,
	}
	for _, b := range leftBuf {
		report.UnmatchedBuffers = append(report.UnmatchedBuffers, b.FrameID)
	}

	if h != nil {
		for _, p := range pairs {
			h.OnPairAvailable(r.info, p)
		}
		h.OnAllPairsReported(report)
	}

	result := "complete"
	switch {
	case report.Aborted:
		result = "aborted"
	case report.TimedOut:
		result = "timeout"
	}
	metrics.ObserveCorrelation(result, len(pairs), len(leftMeta), len(leftBuf), r.waited)
	c.logger.Info().
		Str(dlog.FieldRunID, r.info.ID).
		Str(dlog.FieldDesign, r.info.Design).
		Int(dlog.FieldPairs, len(pairs)).
		Int("unmatched_metadata", len(leftMeta)).
		Int("unmatched_buffers", len(leftBuf)).
		Str("result", result).
		Msg("correlation finished")
	return report, nil
}

// pair sorts both sides by frame id and matches equal ids. One metadata
// entry pairs with every buffer carrying its id.
func pair(md []model.FrameMetadata, bufs []model.FrameBuffer) ([]model.Pair, []model.FrameMetadata, []model.FrameBuffer) {
	sort.SliceStable(md, func(i, j int) bool { return md[i].FrameID < md[j].FrameID })
	sort.SliceStable(bufs, func(i, j int) bool { return bufs[i].FrameID < bufs[j].FrameID })

	var (
		pairs    []model.Pair
		leftMeta []model.FrameMetadata
		leftBuf  []model.FrameBuffer
	)
	i, j := 0, 0
	matched := false
	for i < len(md) && j < len(bufs) {
		switch {
		case bufs[j].FrameID < md[i].FrameID:
			leftBuf = append(leftBuf, bufs[j])
			j++
		case bufs[j].FrameID > md[i].FrameID:
			if !matched {
				leftMeta = append(leftMeta, md[i])
			}
			matched = false
			i++
		default:
			pairs = append(pairs, model.Pair{Buffer: bufs[j], Metadata: md[i]})
			matched = true
			j++
		}
	}
	for ; i < len(md); i++ {
		if !matched {
			leftMeta = append(leftMeta, md[i])
		}
		matched = false
	}
	leftBuf = append(leftBuf, bufs[j:]...)
	return pairs, leftMeta, leftBuf
}
