// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCorrelation(t *testing.T) {
	runs := testutil.ToFloat64(CorrelatorRunsTotal.WithLabelValues("timeout"))
	pairs := testutil.ToFloat64(CorrelatorPairsTotal)
	meta := testutil.ToFloat64(CorrelatorLeftoversTotal.WithLabelValues("metadata"))
	bufs := testutil.ToFloat64(CorrelatorLeftoversTotal.WithLabelValues("buffer"))

	ObserveCorrelation("timeout", 3, 2, 0, 250*time.Millisecond)

	assert.Equal(t, runs+1, testutil.ToFloat64(CorrelatorRunsTotal.WithLabelValues("timeout")))
	assert.Equal(t, pairs+3, testutil.ToFloat64(CorrelatorPairsTotal))
	assert.Equal(t, meta+2, testutil.ToFloat64(CorrelatorLeftoversTotal.WithLabelValues("metadata")))
	assert.Equal(t, bufs, testutil.ToFloat64(CorrelatorLeftoversTotal.WithLabelValues("buffer")))
}

func TestObserveTransition(t *testing.T) {
	before := testutil.ToFloat64(PhaseTransitionsTotal.WithLabelValues("ready", "capturing"))
	ObserveTransition("ready", "capturing")
	assert.Equal(t, before+1, testutil.ToFloat64(PhaseTransitionsTotal.WithLabelValues("ready", "capturing")))
}

func TestIncCorrelatorEvent(t *testing.T) {
	before := testutil.ToFloat64(CorrelatorEventsTotal.WithLabelValues("buffer", "dropped"))
	IncCorrelatorEvent("buffer", "dropped")
	assert.Equal(t, before+1, testutil.ToFloat64(CorrelatorEventsTotal.WithLabelValues("buffer", "dropped")))
}
