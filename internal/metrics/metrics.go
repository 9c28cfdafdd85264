// Package metrics exposes the broker's Prometheus instrumentation:
// session lifecycle, registry size, and dispatch outcomes (spec §5,
// §7's observability carried as ambient stack regardless of the
// spec's non-goals around richer telemetry).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "amq"

// Registry is the broker's private Prometheus registry; callers must
// use Handler (or StartServer) rather than the default global
// registry, so tests can spin up isolated brokers without metric
// collisions.
var Registry = prometheus.NewRegistry()
