// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the value types shared by the capture components.
package model

import (
	"fmt"
	"math"
	"reflect"
)

// Numeric is the set of value kinds a Param can carry.
type Numeric interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Param is one exposure parameter. It is either an explicit value or "auto",
// in which case the device-resolved value is multiplied by Scale at
// resolution time. A zero Scale means 1.
type Param[T Numeric] struct {
	Value T       `json:"value,omitempty" yaml:"value,omitempty"`
	Auto  bool    `json:"auto,omitempty" yaml:"auto,omitempty"`
	Scale float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// Explicit returns a fixed parameter.
func Explicit[T Numeric](v T) Param[T] { return Param[T]{Value: v} }

// AutoParam returns a parameter resolved by the device.
func AutoParam[T Numeric]() Param[T] { return Param[T]{Auto: true} }

// Relative returns an auto parameter scaled by factor once resolved.
func Relative[T Numeric](factor float64) Param[T] { return Param[T]{Auto: true, Scale: factor} }

// Resolve fills an auto parameter from observed and returns an explicit one.
// Explicit parameters are returned unchanged. The scaled value saturates at
// the limits of T; a NaN result resolves to zero.
func (p Param[T]) Resolve(observed T) Param[T] {
	if !p.Auto {
		return p
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	return Param[T]{Value: saturate[T](float64(observed) * scale)}
}

// saturate converts f to T, clamping it to the range T can represent.
func saturate[T Numeric](f float64) T {
	if math.IsNaN(f) {
		return 0
	}
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Int32:
		f = min(max(f, math.MinInt32), math.MaxInt32)
	case reflect.Int64:
		if f >= math.MaxInt64 {
			var top int64 = math.MaxInt64
			return T(top)
		}
		f = max(f, math.MinInt64)
	case reflect.Float32:
		f = min(max(f, -math.MaxFloat32), math.MaxFloat32)
	default:
		f = min(max(f, -math.MaxFloat64), math.MaxFloat64)
	}
	return T(f)
}

func (p Param[T]) String() string {
	switch {
	case !p.Auto:
		return fmt.Sprint(p.Value)
	case p.Scale == 0 || p.Scale == 1:
		return "auto"
	default:
		return fmt.Sprintf("auto*%g", p.Scale)
	}
}

// Range is an inclusive value range reported by a device.
type Range[T Numeric] struct {
	Min T `json:"min" yaml:"min"`
	Max T `json:"max" yaml:"max"`
}

// Clamp limits v to the range. An empty range (Max < Min or both zero)
// leaves v unchanged.
func (r Range[T]) Clamp(v T) T {
	if r.Max < r.Min || (r.Min == 0 && r.Max == 0) {
		return v
	}
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range[T]) Contains(v T) bool {
	return v >= r.Min && v <= r.Max
}
