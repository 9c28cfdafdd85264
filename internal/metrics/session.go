package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsAccepted tracks total inbound TCP connections accepted.
	SessionsAccepted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "accepted_total",
			Help:      "Total number of TCP connections accepted by the node.",
		},
	)

	// SessionsActive is the number of sessions currently in the
	// temp-bound or identity-bound state.
	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently connected.",
		},
	)

	// SessionsClosed tracks sessions that reached the Stopped state,
	// labeled by the reason the session loop exited.
	SessionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Total number of sessions closed, labeled by reason.",
		},
		[]string{"reason"},
	)

	// SessionDuration observes how long a session stayed open, from
	// accept to close.
	SessionDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Session lifetime from accept to close.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to 204.8s (~3.4m)
		},
	)
)
