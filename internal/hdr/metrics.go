package hdr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "stressbench_hdr_"

const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeCancelled = "cancelled"
)

// Metrics records external tool activity.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

// NewMetrics creates the tool metrics and registers them with reg.
// If reg is nil, the metrics are created but not registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "tool_invocations_total",
				Help: "Number of external histogram tool invocations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricsPrefix + "tool_duration_seconds",
				Help:    "Duration of external histogram tool invocations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"operation"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: metricsPrefix + "tool_in_flight",
				Help: "Number of external histogram tool invocations currently running",
			},
		),
	}
}

func (m *Metrics) observe(operation string, duration time.Duration, err error) {
	outcome := outcomeSuccess
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		outcome = outcomeCancelled
	} else if err != nil {
		outcome = outcomeFailure
	}
	m.invocations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
