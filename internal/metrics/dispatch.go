package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrySize is the number of PKs currently in the broker's
	// registry, temporary and registered identities alike.
	RegistrySize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "registry_size",
			Help:      "Number of registered client identities.",
		},
	)

	// SubscriptionCount is the total number of (topic, PK) subscription
	// entries currently held across all topics.
	SubscriptionCount = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "subscription_count",
			Help:      "Total number of active subscription entries.",
		},
	)

	// DispatchTotal counts envelopes routed by the broker, labeled by
	// protocol (Pub/Sub/UnSub/ReqRep) and the resulting status (spec
	// §4.4's Sent/Received/PeerNotFound/Failed outcomes).
	DispatchTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "dispatch_total",
			Help:      "Total envelopes dispatched, labeled by protocol and status.",
		},
		[]string{"protocol", "status"},
	)

	// FrameBytesRead observes the size of frame payloads read off
	// client connections.
	FrameBytesRead = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frame_bytes_read",
			Help:      "Size in bytes of decoded inbound frame payloads.",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 10), // 32B to ~8MB capped by MaxPayloadBytes
		},
	)

	// FrameBytesWritten observes the size of frame payloads written to
	// client connections.
	FrameBytesWritten = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frame_bytes_written",
			Help:      "Size in bytes of encoded outbound frame payloads.",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 10),
		},
	)
)
