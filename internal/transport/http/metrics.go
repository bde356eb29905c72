package httptransport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSSEConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ore_autominer",
		Subsystem: "http",
		Name:      "sse_connections_total",
		Help:      "Event stream connections opened over SSE.",
	})
	metricSSEConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ore_autominer",
		Subsystem: "http",
		Name:      "sse_connections_active",
		Help:      "Event stream connections currently open over SSE.",
	})
)
