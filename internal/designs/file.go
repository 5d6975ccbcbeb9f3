// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package designs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// ErrInvalidDesign wraps every parse or validation failure.
var ErrInvalidDesign = errors.New("invalid design")

// MaxRelativeFactor bounds "x<factor>" values. 1024 is ten stops.
const MaxRelativeFactor = 1024

// File is the on-disk form of a Design.
//
//	name: hdr
//	processing: fast
//	exposures:
//	  - exposure_time: x0.5   # half the auto value
//	    sensitivity: auto
//	    focus_distance: 2     # diopters
type File struct {
	Name       string         `yaml:"name" json:"name"`
	Processing string         `yaml:"processing,omitempty" json:"processing,omitempty"`
	Exposures  []ExposureFile `yaml:"exposures" json:"exposures"`
}

// ExposureFile holds one exposure. Each value is "auto", "x<factor>" for a
// multiple of the auto value, or an explicit number. A missing value is auto.
type ExposureFile struct {
	ExposureTime  Value `yaml:"exposure_time,omitempty" json:"exposure_time,omitempty"`
	Sensitivity   Value `yaml:"sensitivity,omitempty" json:"sensitivity,omitempty"`
	Aperture      Value `yaml:"aperture,omitempty" json:"aperture,omitempty"`
	FocalLength   Value `yaml:"focal_length,omitempty" json:"focal_length,omitempty"`
	FocusDistance Value `yaml:"focus_distance,omitempty" json:"focus_distance,omitempty"`
}

// Value is the raw text of one scalar.
type Value string

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	*v = Value(strings.TrimSpace(node.Value))
	return nil
}

func (v Value) IsZero() bool { return v == "" }

// Parse decodes a YAML or JSON design document. Unknown keys are rejected.
func Parse(data []byte) (model.Design, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Design{}, fmt.Errorf("%w: empty document", ErrInvalidDesign)
		}
		return model.Design{}, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.Design{}, fmt.Errorf("%w: multiple documents or trailing content", ErrInvalidDesign)
	}
	return f.Design()
}

// Design converts the file form into a model.Design.
func (f File) Design() (model.Design, error) {
	d := model.Design{Name: strings.TrimSpace(f.Name)}
	if f.Processing != "" {
		p, err := model.ParseProcessingMode(f.Processing)
		if err != nil {
			return model.Design{}, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
		}
		d.Processing = p
	}
	if len(f.Exposures) > model.MaxExposures {
		return model.Design{}, fmt.Errorf("%w: %d exposures, at most %d allowed", ErrInvalidDesign, len(f.Exposures), model.MaxExposures)
	}
	for i, e := range f.Exposures {
		exp, err := e.exposure()
		if err != nil {
			return model.Design{}, fmt.Errorf("%w: exposure %d: %v", ErrInvalidDesign, i, err)
		}
		d.Exposures = append(d.Exposures, exp)
	}
	return d, nil
}

func (e ExposureFile) exposure() (model.Exposure, error) {
	var (
		out model.Exposure
		err error
	)
	if out.ExposureTime, err = parseParam(e.ExposureTime, parseDuration); err != nil {
		return out, fmt.Errorf("exposure_time: %w", err)
	}
	if out.Sensitivity, err = parseParam(e.Sensitivity, parseInt32); err != nil {
		return out, fmt.Errorf("sensitivity: %w", err)
	}
	if out.Aperture, err = parseParam(e.Aperture, parseFloat32); err != nil {
		return out, fmt.Errorf("aperture: %w", err)
	}
	if out.FocalLength, err = parseParam(e.FocalLength, parseFloat32); err != nil {
		return out, fmt.Errorf("focal_length: %w", err)
	}
	if out.FocusDistance, err = parseParam(e.FocusDistance, parseFloat32); err != nil {
		return out, fmt.Errorf("focus_distance: %w", err)
	}
	return out, nil
}

func parseParam[T model.Numeric](v Value, parse func(string) (T, error)) (model.Param[T], error) {
	s := strings.ToLower(string(v))
	switch {
	case s == "" || s == "auto":
		return model.AutoParam[T](), nil
	case strings.HasPrefix(s, "x"):
		f, err := strconv.ParseFloat(s[1:], 64)
		if err != nil || math.IsNaN(f) || f <= 0 || f > MaxRelativeFactor {
			return model.Param[T]{}, fmt.Errorf("bad relative factor %q (want 0 < x <= %d)", v, MaxRelativeFactor)
		}
		return model.Relative[T](f), nil
	}
	val, err := parse(s)
	if err != nil {
		return model.Param[T]{}, err
	}
	if val < 0 {
		return model.Param[T]{}, fmt.Errorf("negative value %q", v)
	}
	return model.Explicit(val), nil
}

// parseDuration accepts Go durations ("10ms") and bare nanosecond counts.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return d, nil
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad integer %q", s)
	}
	return int32(n), nil
}

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return float32(f), nil
}

// FromDesign converts d into its file form.
func FromDesign(d model.Design) File {
	f := File{Name: d.Name, Processing: string(d.Processing)}
	for _, e := range d.Exposures {
		f.Exposures = append(f.Exposures, ExposureFile{
			ExposureTime:  formatParam(e.ExposureTime, func(v time.Duration) string { return v.String() }),
			Sensitivity:   formatParam(e.Sensitivity, func(v int32) string { return strconv.Itoa(int(v)) }),
			Aperture:      formatParam(e.Aperture, formatFloat),
			FocalLength:   formatParam(e.FocalLength, formatFloat),
			FocusDistance: formatParam(e.FocusDistance, formatFloat),
		})
	}
	return f
}

func formatParam[T model.Numeric](p model.Param[T], format func(T) string) Value {
	switch {
	case !p.Auto:
		return Value(format(p.Value))
	case p.Scale == 0 || p.Scale == 1:
		return "auto"
	default:
		return Value("x" + strconv.FormatFloat(p.Scale, 'g', -1, 64))
	}
}

func formatFloat(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

// Marshal renders d as YAML.
func Marshal(d model.Design) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(FromDesign(d)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
