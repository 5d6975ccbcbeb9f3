// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"time"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
)

const writeTimeout = 5 * time.Second

// Recorder adapts a Journal to ports.PairHandler so that finished runs are
// recorded as their correlation report arrives.
type Recorder struct {
	J *Journal
}

func (r Recorder) OnPairAvailable(model.RunInfo, model.Pair) {}

func (r Recorder) OnAllPairsReported(report model.CorrelationReport) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.J.Finish(ctx, report); err != nil {
		r.J.logger.Error().Err(err).Str(dlog.FieldRunID, report.Run.ID).Msg("journal write failed")
	}
}

var _ ports.PairHandler = Recorder{}
