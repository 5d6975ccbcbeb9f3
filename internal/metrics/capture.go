// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session lifecycle
	PhaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_phase_transitions_total",
		Help: "Capture manager phase transitions",
	}, []string{"from", "to"})

	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_session_rebuilds_total",
		Help: "Capture session rebuilds by outcome (configured, failed, superseded, timeout)",
	}, []string{"result"})

	DeviceEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_device_events_total",
		Help: "Device events received by kind",
	}, []string{"kind"})

	// Design execution
	DesignsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_designs_total",
		Help: "Designs executed by result",
	}, []string{"result"})

	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_convergence_probes_total",
		Help: "Auto-convergence probe requests by convergence state",
	}, []string{"state"})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_frames_total",
		Help: "Still frames reported by the device by result",
	}, []string{"result"})

	// Correlation
	CorrelatorEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_correlator_events_total",
		Help: "Metadata and buffer events seen by the correlator",
	}, []string{"kind", "result"})

	CorrelatorPairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcam_correlator_pairs_total",
		Help: "Matched (buffer, metadata) pairs",
	})

	CorrelatorLeftoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_correlator_leftovers_total",
		Help: "Unmatched entries left after a correlation run",
	}, []string{"kind"})

	CorrelatorRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_correlator_runs_total",
		Help: "Correlation runs by outcome (complete, timeout, aborted)",
	}, []string{"result"})

	CorrelationWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "devcam_correlation_wait_seconds",
		Help:    "Time from sequence completion to correlation completion",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
	})

	// Outputs
	SinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcam_sink_writes_total",
		Help: "Artifact files written by kind and result",
	}, []string{"kind", "result"})
)

// ObserveTransition records a phase change.
func ObserveTransition(from, to string) {
	PhaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// IncCorrelatorEvent records a correlator input. result is "recorded" or "dropped".
func IncCorrelatorEvent(kind, result string) {
	CorrelatorEventsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveCorrelation records the outcome of a finished correlation run.
func ObserveCorrelation(result string, pairs, leftoverMeta, leftoverBuffers int, waited time.Duration) {
	CorrelatorRunsTotal.WithLabelValues(result).Inc()
	CorrelatorPairsTotal.Add(float64(pairs))
	if leftoverMeta > 0 {
		CorrelatorLeftoversTotal.WithLabelValues("metadata").Add(float64(leftoverMeta))
	}
	if leftoverBuffers > 0 {
		CorrelatorLeftoversTotal.WithLabelValues("buffer").Add(float64(leftoverBuffers))
	}
	if waited > 0 {
		CorrelationWaitSeconds.Observe(waited.Seconds())
	}
}
