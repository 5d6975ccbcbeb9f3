// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"sync/atomic"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// Target is an output surface owned by the caller. It stays valid until
// Release.
type Target struct {
	spec     model.TargetSpec
	released atomic.Bool
}

func NewTarget(spec model.TargetSpec) *Target { return &Target{spec: spec} }

func (t *Target) Spec() model.TargetSpec { return t.spec }
func (t *Target) Valid() bool            { return !t.released.Load() }
func (t *Target) Release()               { t.released.Store(true) }
