package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var events = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registrar_events_total",
		Help: "Number of scaling events handled by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

var passDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "registrar_pass_duration_seconds",
		Help: "Duration of reconciliation passes that reached the controller.",
		//nolint:gomnd
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50 ms to ~100 seconds
	},
)

func init() {
	prometheus.MustRegister(
		events,
		passDuration,
	)
}
