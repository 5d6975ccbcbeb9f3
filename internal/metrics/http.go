// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devcam_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcam_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	HTTPRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcam_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	HTTPPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcam_http_panics_total",
		Help: "Panics recovered in HTTP handlers",
	})
)
