package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinspect_lines_total",
			Help: "Framed lines by decode result (event, unparsed, foreign)",
		},
		[]string{"result"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinspect_events_total",
			Help: "Decoded events by kind",
		},
		[]string{"kind"},
	)

	droppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinspect_dropped_events_total",
			Help: "Events that referred to a trial never started in their session",
		},
	)

	storeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinspect_store_errors_total",
			Help: "Failed store writes",
		},
	)

	truncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinspect_truncated_frames_total",
			Help: "Partial lines discarded because they exceeded the frame limit",
		},
	)

	burstDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kinspect_burst_duration_seconds",
			Help:    "Time to decode, correlate and commit one burst",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
	)

	sessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinspect_sessions_total",
			Help: "Sessions started",
		},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinspect_reconnects_total",
			Help: "Transport reconnect attempts by outcome",
		},
		[]string{"outcome"},
	)
)
