package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	routeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnkit",
		Subsystem: "router",
		Name:      "route_total",
		Help:      "Routing decisions by tier and outcome: matched, classified, cache_hit, fallback",
	}, []string{"tier", "outcome"})

	classifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turnkit",
		Subsystem: "router",
		Name:      "classifier_latency_seconds",
		Help:      "Latency of Tier-2 classifier calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	classifierRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnkit",
		Subsystem: "router",
		Name:      "classifier_reject_total",
		Help:      "Tier-2 answers that triggered fallback, by reason",
	}, []string{"reason"})
)

var tracer = otel.Tracer("turnkit.router")

const (
	outcomeMatched    = "matched"
	outcomeClassified = "classified"
	outcomeCacheHit   = "cache_hit"
	outcomeFallback   = "fallback"
)
