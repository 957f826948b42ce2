package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// PipelineMetrics tracks query pipeline degradation. It satisfies usecase.FallbackRecorder.
type PipelineMetrics struct {
	service string

	fallbacksTotal *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
}

func newPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "pipeline",
			Name:      "fallbacks_total",
			Help:      "Total pipeline stages that degraded to their fallback value.",
		},
		[]string{"service", "stage"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nlq",
			Subsystem: "dependency",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per outbound operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(fallbacksTotal, breakerState)

	return &PipelineMetrics{
		service:        service,
		fallbacksTotal: fallbacksTotal,
		breakerState:   breakerState,
	}
}

func (m *PipelineMetrics) RecordFallback(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.fallbacksTotal.WithLabelValues(m.service, stage).Inc()
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *PipelineMetrics) ObserveBreakerState(operation string, _ gobreaker.State, to gobreaker.State) {
	value := 0.0
	switch to {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
