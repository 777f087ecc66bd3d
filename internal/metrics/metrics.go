// Package metrics exposes the Prometheus instruments used by the companion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	Turns          *prometheus.CounterVec
	ModelLatency   *prometheus.HistogramVec
	ModelErrors    *prometheus.CounterVec
	MemoryRecall   *prometheus.CounterVec
	MemoryWrites   *prometheus.CounterVec
	ProfileUpdates *prometheus.CounterVec
	Extractions    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments with reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of user sessions held in memory.",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by final state.",
		}, []string{"state"}),
		ModelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Model call latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"purpose"}),
		ModelErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_errors_total",
			Help:      "Model failures by kind.",
		}, []string{"kind"}),
		MemoryRecall: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_recall_total",
			Help:      "Memory lookups by result (hit, miss, unavailable).",
		}, []string{"result"}),
		MemoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory index writes by result.",
		}, []string{"result"}),
		ProfileUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_updates_total",
			Help:      "Profile merges by result (changed, unchanged, persist_failed).",
		}, []string{"result"}),
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_extractions_total",
			Help:      "Profile extractions by result (parsed, empty).",
		}, []string{"result"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) TurnFinished(state string) {
	if m != nil {
		m.Turns.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ObserveModel(purpose string, d time.Duration) {
	if m != nil {
		m.ModelLatency.WithLabelValues(purpose).Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) ModelFailed(kind string) {
	if m != nil {
		m.ModelErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Recall(result string) {
	if m != nil {
		m.MemoryRecall.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) MemoryWrite(result string) {
	if m != nil {
		m.MemoryWrites.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ProfileUpdate(result string) {
	if m != nil {
		m.ProfileUpdates.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Extraction(result string) {
	if m != nil {
		m.Extractions.WithLabelValues(result).Inc()
	}
}
