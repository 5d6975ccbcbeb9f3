// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/devcam/internal/designs"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/template"
	"github.com/ManuGH/devcam/internal/log"
)

const (
	maxBodyBytes   = 1 << 20
	defaultRunList = 50
	maxRunList     = 500
	beginTimeout   = 5 * time.Second
)

// CaptureRequest starts a Design either by stored name or inline. Inline
// accepts the design file schema as JSON.
type CaptureRequest struct {
	Design     string          `json:"design,omitempty"`
	Inline     json.RawMessage `json:"inline,omitempty"`
	Processing string          `json:"processing,omitempty"`
}

// TemplateRequest parameterizes a template. Low and High are meters for
// rack_focus, stops for relative brackets, nanoseconds for absolute
// exposure time and ISO for absolute sensitivity.
type TemplateRequest struct {
	N          int     `json:"n"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Processing string  `json:"processing,omitempty"`
	Capture    bool    `json:"capture,omitempty"`
	Save       bool    `json:"save,omitempty"`
}

type TemplateResponse struct {
	Design designs.File   `json:"design"`
	Saved  bool           `json:"saved"`
	Run    *model.RunInfo `json:"run,omitempty"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

func applyProcessing(d *model.Design, s string) error {
	if s == "" {
		return nil
	}
	mode, err := model.ParseProcessingMode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	d.Processing = mode
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Capturer.Status())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		d   model.Design
		err error
	)
	switch {
	case req.Design != "" && len(req.Inline) > 0:
		err = fmt.Errorf("%w: design and inline are exclusive", errInvalidRequest)
	case len(req.Inline) > 0:
		d, err = designs.Parse(req.Inline)
		if d.Name == "" {
			d.Name = "inline"
		}
	case req.Design != "":
		d, err = s.deps.Designs.Load(req.Design)
	default:
		err = fmt.Errorf("%w: design or inline is required", errInvalidRequest)
	}
	if err == nil {
		err = applyProcessing(&d, req.Processing)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	run, err := s.startRun(r.Context(), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// startRun starts d and records it in the journal. A journal failure is
// logged only; the capture is already under way.
func (s *Server) startRun(ctx context.Context, d model.Design) (model.RunInfo, error) {
	run, err := s.deps.Capturer.Capture(ctx, d)
	if err != nil {
		return model.RunInfo{}, err
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), beginTimeout)
	defer cancel()
	if _, err := s.deps.Runs.Begin(bctx, run); err != nil {
		logger := log.WithComponentFromContext(ctx, "api")
		logger.Error().Err(err).Str(log.FieldRunID, run.ID).Msg("failed to journal run start")
	}
	return run, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunList
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, fmt.Errorf("%w: limit %q", errInvalidRequest, v))
			return
		}
		limit = min(n, maxRunList)
	}
	runs, err := s.deps.Runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListDesigns(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Designs.List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetDesign(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Designs.Load(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, designs.FromDesign(d))
}

// handlePutDesign stores a design file body (YAML or JSON) under the URL
// name.
func (s *Server) handlePutDesign(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	d, err := designs.Parse(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d.Name = chi.URLParam(r, "name")
	if err := s.deps.Designs.Save(d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, designs.FromDesign(d))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, template.Kinds())
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	kind, err := template.ParseKind(chi.URLParam(r, "template"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req TemplateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	caps := s.deps.Capturer.Status().Capabilities
	d, err := template.Generate(kind, template.Params{N: req.N, Low: req.Low, High: req.High}, caps)
	if err == nil {
		err = applyProcessing(&d, req.Processing)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := TemplateResponse{Design: designs.FromDesign(d)}
	if req.Save {
		if err := s.deps.Designs.Save(d); err != nil {
			writeError(w, r, err)
			return
		}
		resp.Saved = true
	}
	if !req.Capture {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	run, err := s.startRun(r.Context(), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Run = &run
	writeJSON(w, http.StatusAccepted, resp)
}
