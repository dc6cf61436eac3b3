package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the relay. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	GenerateTotal    *prometheus.CounterVec
	BackendLatency   *prometheus.HistogramVec
	Conversations    prometheus.Gauge
	InboundMessages  *prometheus.CounterVec
	ResetTotal       *prometheus.CounterVec
	DispatchInFlight prometheus.Gauge
	TranscriptErrors prometheus.Counter
	WSMessages       *prometheus.CounterVec

	latency  *latencyWindow
	gatherer prometheus.Gatherer
}

// NewMetrics registers the relay instruments on reg. A nil reg uses the
// process-wide default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		GenerateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_total",
			Help:      "Reply generations by outcome.",
		}, []string{"outcome"}),
		BackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_ms",
			Help:      "Model backend call latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}, []string{"outcome"}),
		Conversations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Conversations with an in-memory history entry.",
		}),
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by source and kind.",
		}, []string{"source", "kind"}),
		ResetTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reset_total",
			Help:      "Conversation resets by source.",
		}, []string{"source"}),
		DispatchInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_in_flight",
			Help:      "Inbound messages currently being handled by the dispatcher pool.",
		}),
		TranscriptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_errors_total",
			Help:      "Transcript archive writes that failed.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		latency:  newLatencyWindow(512),
		gatherer: gatherer,
	}
}

// ObserveGenerate records one finished generation and its backend latency.
func (m *Metrics) ObserveGenerate(outcome string, backendLatency, total time.Duration) {
	if m == nil {
		return
	}
	m.GenerateTotal.WithLabelValues(outcome).Inc()
	m.BackendLatency.WithLabelValues(outcome).Observe(float64(backendLatency.Milliseconds()))
	m.latency.observe(StageBackendCall, backendLatency)
	m.latency.observe(StageGenerate, total)
	m.latency.countOutcome(outcome)
}

func (m *Metrics) ObserveInbound(source, kind string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) ObserveReset(source string) {
	if m == nil {
		return
	}
	m.ResetTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.Conversations.Set(float64(n))
}

func (m *Metrics) ObserveTranscriptError() {
	if m == nil {
		return
	}
	m.TranscriptErrors.Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) DispatchStarted() {
	if m == nil {
		return
	}
	m.DispatchInFlight.Inc()
}

func (m *Metrics) DispatchFinished() {
	if m == nil {
		return
	}
	m.DispatchInFlight.Dec()
}

// SetBackendBudget marks backend calls slower than d as over budget in the
// latency window. The relay passes its model timeout.
func (m *Metrics) SetBackendBudget(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.setBudget(StageBackendCall, d)
}

// SnapshotLatency reports rolling latency percentiles for the most recent
// generations.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return newLatencyWindow(1).snapshot()
	}
	return m.latency.snapshot()
}

// ResetLatency clears the rolling latency window.
func (m *Metrics) ResetLatency() {
	if m == nil {
		return
	}
	m.latency.reset()
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
