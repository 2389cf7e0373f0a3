package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeTextOnly = "text_only"
	OutcomeNoSpeech = "no_speech"
	OutcomeFailed   = "failed"
)

// Pipeline stages.
const (
	StageSTT    = "stt"
	StageLLM    = "llm"
	StageTTS    = "tts"
	StageAppend = "append"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	LiveConnections prometheus.Gauge
	ProviderErrors  *prometheus.CounterVec
}

// New registers all collectors under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rehearsal"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each turn pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	liveConnections := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Open live WebSocket connections",
		},
	)

	providerErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Errors returned by external speech and language providers",
		},
		[]string{"provider", "stage"},
	)

	registry.MustRegister(turnsTotal, stageDuration, liveConnections, providerErrors)

	return &Metrics{
		registry:        registry,
		TurnsTotal:      turnsTotal,
		StageDuration:   stageDuration,
		LiveConnections: liveConnections,
		ProviderErrors:  providerErrors,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordProviderError counts a provider failure.
func (m *Metrics) RecordProviderError(provider, stage string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, stage).Inc()
}

// LiveOpened increments the open connection gauge.
func (m *Metrics) LiveOpened() {
	if m == nil {
		return
	}
	m.LiveConnections.Inc()
}

// LiveClosed decrements the open connection gauge.
func (m *Metrics) LiveClosed() {
	if m == nil {
		return
	}
	m.LiveConnections.Dec()
}
