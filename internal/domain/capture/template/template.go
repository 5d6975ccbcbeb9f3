// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package template generates common Designs from a few parameters.
package template

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// Kind names a template.
type Kind string

const (
	KindBurst                       Kind = "burst"
	KindSplitTime                   Kind = "split_time"
	KindRackFocus                   Kind = "rack_focus"
	KindBracketExposureTimeRelative Kind = "bracket_exposure_time_relative"
	KindBracketExposureTimeAbsolute Kind = "bracket_exposure_time_absolute"
	KindBracketISORelative          Kind = "bracket_iso_relative"
	KindBracketISOAbsolute          Kind = "bracket_iso_absolute"
)

var (
	ErrUnknownTemplate = errors.New("unknown template")
	ErrInvalidCount    = fmt.Errorf("number of exposures must be between 1 and %d", model.MaxExposures)
	ErrInvalidBound    = errors.New("invalid bound")
)

// Params are the template inputs. Low and High are interpreted per Kind:
// meters for rack focus, stops for relative brackets, nanoseconds for
// absolute exposure time and ISO for absolute sensitivity. Bounds given in
// the wrong order are swapped.
type Params struct {
	N    int     `json:"n"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Kinds lists every template in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindBurst, KindSplitTime, KindRackFocus,
		KindBracketExposureTimeAbsolute, KindBracketExposureTimeRelative,
		KindBracketISOAbsolute, KindBracketISORelative,
	}
}

// ParseKind accepts the template name in any case, with '-' or '_'.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, s)
}

// Generate builds the Design for kind. Absolute values are clamped to caps.
func Generate(kind Kind, p Params, caps model.Capabilities) (model.Design, error) {
	if math.IsNaN(p.Low) || math.IsInf(p.Low, 0) || math.IsNaN(p.High) || math.IsInf(p.High, 0) {
		return model.Design{}, fmt.Errorf("%w: bounds must be finite", ErrInvalidBound)
	}
	switch kind {
	case KindBurst:
		return Burst(p.N)
	case KindSplitTime:
		return SplitTime(p.N)
	case KindRackFocus:
		return RackFocus(p.N, p.Low, p.High, caps)
	case KindBracketExposureTimeRelative:
		return BracketExposureTimeRelative(p.N, p.Low, p.High)
	case KindBracketExposureTimeAbsolute:
		if math.Abs(p.Low) >= math.MaxInt64 || math.Abs(p.High) >= math.MaxInt64 {
			return model.Design{}, fmt.Errorf("%w: exposure time out of range", ErrInvalidBound)
		}
		return BracketExposureTimeAbsolute(p.N, time.Duration(p.Low), time.Duration(p.High), caps)
	case KindBracketISORelative:
		return BracketISORelative(p.N, p.Low, p.High)
	case KindBracketISOAbsolute:
		if math.Abs(p.Low) > math.MaxInt32 || math.Abs(p.High) > math.MaxInt32 {
			return model.Design{}, fmt.Errorf("%w: sensitivity out of range", ErrInvalidBound)
		}
		return BracketISOAbsolute(p.N, int32(p.Low), int32(p.High), caps)
	default:
		return model.Design{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, kind)
	}
}

// MaxStops bounds relative brackets in either direction.
const MaxStops = 10

func checkStops(stops ...float64) error {
	for _, st := range stops {
		if math.IsNaN(st) || math.Abs(st) > MaxStops {
			return fmt.Errorf("%w: stops must be within ±%d", ErrInvalidBound, MaxStops)
		}
	}
	return nil
}

// Burst is n fully automatic exposures.
func Burst(n int) (model.Design, error) {
	return build(KindBurst, n, func(int) model.Exposure { return model.AutoExposure() })
}

// SplitTime divides the auto exposure time evenly over n exposures.
func SplitTime(n int) (model.Design, error) {
	return build(KindSplitTime, n, func(int) model.Exposure {
		e := model.AutoExposure()
		e.ExposureTime = model.Relative[time.Duration](1 / float64(n))
		return e
	})
}

// RackFocus steps focus from nearM to farM meters. Distances closer than
// the device minimum focus distance are clamped to it.
func RackFocus(n int, nearM, farM float64, caps model.Capabilities) (model.Design, error) {
	if nearM <= 0 || farM <= 0 {
		return model.Design{}, fmt.Errorf("%w: focus distances must be positive meters", ErrInvalidBound)
	}
	nearM, farM = ordered(nearM, farM)
	if caps.MinFocusDistance > 0 {
		closest := 1 / float64(caps.MinFocusDistance)
		nearM = math.Max(nearM, closest)
		farM = math.Max(farM, closest)
	}
	return build(KindRackFocus, n, func(i int) model.Exposure {
		e := model.AutoExposure()
		e.FocusDistance = model.Explicit(float32(1 / lerp(nearM, farM, i, n)))
		return e
	})
}

// BracketExposureTimeRelative scales the auto exposure time by 2^stops,
// stepping stops from lowStops to highStops.
func BracketExposureTimeRelative(n int, lowStops, highStops float64) (model.Design, error) {
	if err := checkStops(lowStops, highStops); err != nil {
		return model.Design{}, err
	}
	lowStops, highStops = ordered(lowStops, highStops)
	return build(KindBracketExposureTimeRelative, n, func(i int) model.Exposure {
		e := model.AutoExposure()
		e.ExposureTime = model.Relative[time.Duration](math.Exp2(lerp(lowStops, highStops, i, n)))
		return e
	})
}

// BracketExposureTimeAbsolute steps the exposure time from low to high.
func BracketExposureTimeAbsolute(n int, low, high time.Duration, caps model.Capabilities) (model.Design, error) {
	if low <= 0 || high <= 0 {
		return model.Design{}, fmt.Errorf("%w: exposure time must be positive", ErrInvalidBound)
	}
	low, high = ordered(low, high)
	low, high = caps.ExposureTimeRange.Clamp(low), caps.ExposureTimeRange.Clamp(high)
	return build(KindBracketExposureTimeAbsolute, n, func(i int) model.Exposure {
		e := model.AutoExposure()
		e.ExposureTime = model.Explicit(time.Duration(lerp(float64(low), float64(high), i, n)))
		return e
	})
}

// BracketISORelative scales the auto sensitivity by 2^stops.
func BracketISORelative(n int, lowStops, highStops float64) (model.Design, error) {
	if err := checkStops(lowStops, highStops); err != nil {
		return model.Design{}, err
	}
	lowStops, highStops = ordered(lowStops, highStops)
	return build(KindBracketISORelative, n, func(i int) model.Exposure {
		e := model.AutoExposure()
		e.Sensitivity = model.Relative[int32](math.Exp2(lerp(lowStops, highStops, i, n)))
		return e
	})
}

// BracketISOAbsolute steps the sensitivity from low to high.
func BracketISOAbsolute(n int, low, high int32, caps model.Capabilities) (model.Design, error) {
	if low <= 0 || high <= 0 {
		return model.Design{}, fmt.Errorf("%w: sensitivity must be positive", ErrInvalidBound)
	}
	low, high = ordered(low, high)
	low, high = caps.SensitivityRange.Clamp(low), caps.SensitivityRange.Clamp(high)
	return build(KindBracketISOAbsolute, n, func(i int) model.Exposure {
		e := model.AutoExposure()
		e.Sensitivity = model.Explicit(int32(math.Round(lerp(float64(low), float64(high), i, n))))
		return e
	})
}

func build(kind Kind, n int, exposure func(i int) model.Exposure) (model.Design, error) {
	if n < 1 || n > model.MaxExposures {
		return model.Design{}, ErrInvalidCount
	}
	d := model.Design{Name: string(kind), Exposures: make([]model.Exposure, 0, n)}
	for i := 0; i < n; i++ {
		d.Exposures = append(d.Exposures, exposure(i))
	}
	return d, nil
}

// lerp returns the i-th of n evenly spaced values from lo to hi inclusive.
func lerp(lo, hi float64, i, n int) float64 {
	if n == 1 {
		return lo
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

func ordered[T model.Numeric](a, b T) (T, T) {
	if b < a {
		return b, a
	}
	return a, b
}
