// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ore_autominer"

var (
	RPCCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Solana RPC call latency by method.",
		Buckets:   []float64{.01, .025, .05, .1, .2, .4, .8, 1.6},
	}, []string{"method"})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "errors_total",
		Help:      "Solana RPC calls that failed after retries.",
	}, []string{"method"})

	SmoothedRTT = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "smoothed_rtt_seconds",
		Help:      "EWMA round-trip time to the RPC endpoint.",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "decisions_total",
		Help:      "Round decisions by action and skip reason.",
	}, []string{"action", "reason"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bundle",
		Name:      "submissions_total",
		Help:      "Bundle submissions by outcome.",
	}, []string{"outcome"})

	SubmitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "bundle",
		Name:      "submit_duration_seconds",
		Help:      "Time from build to relay acceptance.",
		Buckets:   []float64{.025, .05, .1, .2, .4, .8, 1.6},
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "settlements_total",
		Help:      "Settled transaction rows by status.",
	}, []string{"status"})

	Claims = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "claims",
		Name:      "claims_total",
		Help:      "Claims by type and terminal status.",
	}, []string{"type", "status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "governor",
		Name:      "active_sessions",
		Help:      "Sessions with a running scheduler.",
	})

	AlertPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alertpush",
		Name:      "messages_total",
		Help:      "Alert push deliveries by platform and result.",
	}, []string{"platform", "result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
