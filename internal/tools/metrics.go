package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	dispatchCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnkit",
		Subsystem: "dispatcher",
		Name:      "calls_total",
		Help:      "Dispatched tool calls by outcome: ok, error, denied, unregistered, timeout, cancelled",
	}, []string{"outcome"})

	dispatchCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turnkit",
		Subsystem: "dispatcher",
		Name:      "call_duration_seconds",
		Help:      "End-to-end duration of dispatched tool calls",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
	})
)

var tracer = otel.Tracer("turnkit.tools")

const (
	outcomeOK           = "ok"
	outcomeError        = "error"
	outcomeDenied       = "denied"
	outcomeUnregistered = "unregistered"
	outcomeTimeout      = "timeout"
	outcomeCancelled    = "cancelled"
)
