package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the booking pipeline.
type PipelineMetrics struct {
	turnsTotal          *prometheus.CounterVec
	llmLatency          *prometheus.HistogramVec
	normalizerFallbacks prometheus.Counter
	classifierFallbacks prometheus.Counter
	reservationsTotal   *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicebook",
			Subsystem: "booking",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"state", "intent"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voicebook",
			Subsystem: "booking",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language-service calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		normalizerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicebook",
			Subsystem: "booking",
			Name:      "normalizer_fallbacks_total",
			Help:      "Turns where normalization fell back to raw text",
		}),
		classifierFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicebook",
			Subsystem: "booking",
			Name:      "classifier_fallbacks_total",
			Help:      "Turns where classification degraded to the unclear default",
		}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicebook",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal,
		m.llmLatency,
		m.normalizerFallbacks,
		m.classifierFallbacks,
		m.reservationsTotal,
	)
	return m
}

func (m *PipelineMetrics) ObserveTurn(state, intent string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state, intent).Inc()
}

func (m *PipelineMetrics) ObserveLLMLatency(op string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(op).Observe(seconds)
}

func (m *PipelineMetrics) ObserveNormalizerFallback() {
	if m == nil {
		return
	}
	m.normalizerFallbacks.Inc()
}

func (m *PipelineMetrics) ObserveClassifierFallback() {
	if m == nil {
		return
	}
	m.classifierFallbacks.Inc()
}

func (m *PipelineMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}
