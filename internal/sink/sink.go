// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sink persists correlated capture pairs to disk.
//
// Every run writes into <dir>/<design>/. Each buffer is written as
// <design>-<n>-<unix ms><ext>, where n numbers the exposures of the run from
// 1; buffers of one exposure share n. When a run ends,
// <design>_capture_metadata.json lists every written file together with its
// frame metadata and the correlation leftovers, and
// <design>_design_request.yaml holds the Design as it was submitted. All
// files are written atomically.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/designs"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
)

const (
	metadataSuffix = "_capture_metadata.json"
	requestSuffix  = "_design_request.yaml"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Entry describes one written buffer.
type Entry struct {
	File     string              `json:"file"`
	Exposure int                 `json:"exposure"`
	FrameID  model.FrameID       `json:"frame_id"`
	Target   model.TargetID      `json:"target"`
	Format   model.Format        `json:"format"`
	Width    int                 `json:"width,omitempty"`
	Height   int                 `json:"height,omitempty"`
	Metadata model.FrameMetadata `json:"metadata"`
}

// Report is the content of the per-design metadata file.
type Report struct {
	Run               model.RunInfo         `json:"run"`
	FinishedAt        time.Time             `json:"finished_at"`
	Files             []Entry               `json:"files"`
	DesignRequest     string                `json:"design_request,omitempty"`
	FailedWrites      int                   `json:"failed_writes,omitempty"`
	UnmatchedMetadata []model.FrameMetadata `json:"unmatched_metadata,omitempty"`
	UnmatchedBuffers  []model.FrameID       `json:"unmatched_buffers,omitempty"`
	TimedOut          bool                  `json:"timed_out"`
	Aborted           bool                  `json:"aborted"`
}

// Option configures a Sink.
type Option func(*Sink)

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// WithNext chains another handler that sees every pair and report after
// the sink has written them.
func WithNext(h ports.PairHandler) Option {
	return func(s *Sink) { s.next = h }
}

type runFiles struct {
	design    *model.Design
	exposures map[model.FrameID]int
	names     map[string]struct{}
	entries   []Entry
	failed    int
}

// Sink is a ports.PairHandler writing to a directory.
type Sink struct {
	dir    string
	now    func() time.Time
	next   ports.PairHandler
	logger zerolog.Logger

	mu   sync.Mutex
	runs map[string]*runFiles
}

func New(dir string, opts ...Option) *Sink {
	s := &Sink{
		dir:    filepath.Clean(dir),
		now:    time.Now,
		logger: dlog.WithComponent("sink"),
		runs:   make(map[string]*runFiles),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the output directory.
func (s *Sink) Dir() string { return s.dir }

// RunDir returns the directory the runs of design are written to.
func (s *Sink) RunDir(design string) string {
	return filepath.Join(s.dir, safeName(design))
}

// OnRunStarted records the submitted Design of run.
func (s *Sink) OnRunStarted(run model.RunInfo, design model.Design) {
	s.mu.Lock()
	s.run(run.ID).design = &design
	s.mu.Unlock()
	if o, ok := s.next.(ports.RunObserver); ok {
		o.OnRunStarted(run, design)
	}
}

func (s *Sink) OnPairAvailable(run model.RunInfo, pair model.Pair) {
	base := safeName(run.Design)
	ext := pair.Buffer.Format.Extension()

	s.mu.Lock()
	rf := s.run(run.ID)
	n, ok := rf.exposures[pair.Buffer.FrameID]
	if !ok {
		n = len(rf.exposures) + 1
		rf.exposures[pair.Buffer.FrameID] = n
	}
	name := fmt.Sprintf("%s-%d-%d%s", base, n, s.now().UnixMilli(), ext)
	if _, taken := rf.names[name]; taken {
		name = fmt.Sprintf("%s-%d-%d-%s%s", base, n, s.now().UnixMilli(), safeName(string(pair.Buffer.Target)), ext)
	}
	rf.names[name] = struct{}{}
	s.mu.Unlock()

	err := s.write(base, name, pair.Buffer.Data)

	s.mu.Lock()
	if err != nil {
		rf.failed++
	} else {
		rf.entries = append(rf.entries, Entry{
			File:     name,
			Exposure: n,
			FrameID:  pair.Buffer.FrameID,
			Target:   pair.Buffer.Target,
			Format:   pair.Buffer.Format,
			Width:    pair.Buffer.Width,
			Height:   pair.Buffer.Height,
			Metadata: pair.Metadata,
		})
	}
	s.mu.Unlock()

	if err != nil {
		metrics.SinkWritesTotal.WithLabelValues("frame", "error").Inc()
		s.logger.Error().Err(err).Str(dlog.FieldRunID, run.ID).Int64(dlog.FieldFrameID, int64(pair.Buffer.FrameID)).Msg("frame write failed")
	} else {
		metrics.SinkWritesTotal.WithLabelValues("frame", "ok").Inc()
	}
	if s.next != nil {
		s.next.OnPairAvailable(run, pair)
	}
}

func (s *Sink) OnAllPairsReported(report model.CorrelationReport) {
	s.mu.Lock()
	rf := s.runs[report.Run.ID]
	delete(s.runs, report.Run.ID)
	s.mu.Unlock()
	if rf == nil {
		rf = &runFiles{}
	}

	out := Report{
		Run:               report.Run,
		FinishedAt:        s.now().UTC(),
		Files:             rf.entries,
		FailedWrites:      rf.failed,
		UnmatchedMetadata: report.UnmatchedMetadata,
		UnmatchedBuffers:  report.UnmatchedBuffers,
		TimedOut:          report.TimedOut,
		Aborted:           report.Aborted,
	}
	if out.Files == nil {
		out.Files = []Entry{}
	}
	base := safeName(report.Run.Design)
	if rf.design != nil {
		if err := s.writeRequest(base, *rf.design); err != nil {
			metrics.SinkWritesTotal.WithLabelValues("request", "error").Inc()
			s.logger.Error().Err(err).Str(dlog.FieldRunID, report.Run.ID).Msg("design request write failed")
		} else {
			metrics.SinkWritesTotal.WithLabelValues("request", "ok").Inc()
			out.DesignRequest = RequestFile(report.Run.Design)
		}
	}

	name := MetadataFile(report.Run.Design)
	data, err := json.MarshalIndent(out, "", "  ")
	if err == nil {
		err = s.write(base, name, append(data, '\n'))
	}
	if err != nil {
		metrics.SinkWritesTotal.WithLabelValues("metadata", "error").Inc()
		s.logger.Error().Err(err).Str(dlog.FieldRunID, report.Run.ID).Msg("metadata write failed")
	} else {
		metrics.SinkWritesTotal.WithLabelValues("metadata", "ok").Inc()
		s.logger.Info().
			Str(dlog.FieldEvent, "sink.run_written").
			Str(dlog.FieldRunID, report.Run.ID).
			Str(dlog.FieldDesign, report.Run.Design).
			Int(dlog.FieldPairs, len(rf.entries)).
			Str(dlog.FieldPath, filepath.Join(s.dir, base, name)).
			Msg("capture written")
	}
	if s.next != nil {
		s.next.OnAllPairsReported(report)
	}
}

// MetadataFile returns the name of the per-design metadata file.
func MetadataFile(design string) string {
	return safeName(design) + metadataSuffix
}

// RequestFile returns the name of the file holding the submitted Design.
func RequestFile(design string) string {
	return safeName(design) + requestSuffix
}

func (s *Sink) run(id string) *runFiles {
	rf, ok := s.runs[id]
	if !ok {
		rf = &runFiles{
			exposures: make(map[model.FrameID]int),
			names:     make(map[string]struct{}),
		}
		s.runs[id] = rf
	}
	return rf
}

func (s *Sink) writeRequest(base string, d model.Design) error {
	data, err := designs.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode design: %w", err)
	}
	return s.write(base, base+requestSuffix, data)
}

func (s *Sink) write(sub, name string, data []byte) error {
	dir := filepath.Join(s.dir, sub)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return renameio.WriteFile(filepath.Join(dir, name), data, 0o640)
}

func safeName(design string) string {
	name := unsafeChars.ReplaceAllString(design, "_")
	if name == "" || name == "." || name == ".." {
		return "design"
	}
	return name
}

var (
	_ ports.PairHandler = (*Sink)(nil)
	_ ports.RunObserver = (*Sink)(nil)
)
