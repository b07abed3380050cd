// Package metrics exposes chat stream counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeErrored   = "errored"
	OutcomeCancelled = "cancelled"
)

// Retrieval degradation reasons.
const (
	ReasonError   = "error"
	ReasonTimeout = "timeout"
)

// ChatMetrics is safe to use as a nil pointer; every method is then a no-op.
type ChatMetrics struct {
	registry *prometheus.Registry

	turns             *prometheus.CounterVec
	retrievalDegraded *prometheus.CounterVec
	fragments         prometheus.Counter
	activeStreams     prometheus.Gauge
	timeToFirstToken  prometheus.Histogram
	retrievalDuration prometheus.Histogram
	cacheLookups      *prometheus.CounterVec
}

func NewChatMetrics() *ChatMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ChatMetrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "chat_turns_total",
			Help:      "Chat turns by delivery mode and outcome.",
		}, []string{"mode", "outcome"}),
		retrievalDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "retrieval_degraded_total",
			Help:      "Turns answered without document context because retrieval failed.",
		}, []string{"reason"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "stream_fragments_total",
			Help:      "Content events sent to clients.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docchat",
			Name:      "active_streams",
			Help:      "Streams currently generating.",
		}),
		timeToFirstToken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "time_to_first_token_seconds",
			Help:      "Delay between accepting a message and sending its first content event.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent in document retrieval per turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "retrieval_cache_lookups_total",
			Help:      "Retrieval cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.turns, m.retrievalDegraded, m.fragments, m.activeStreams,
		m.timeToFirstToken, m.retrievalDuration, m.cacheLookups)
	return m
}

func (m *ChatMetrics) TurnFinished(mode, outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, outcome).Inc()
}

func (m *ChatMetrics) RetrievalDegraded(reason string) {
	if m == nil {
		return
	}
	m.retrievalDegraded.WithLabelValues(reason).Inc()
}

func (m *ChatMetrics) RetrievalObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalDuration.Observe(d.Seconds())
}

func (m *ChatMetrics) FragmentSent() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

func (m *ChatMetrics) FirstToken(d time.Duration) {
	if m == nil {
		return
	}
	m.timeToFirstToken.Observe(d.Seconds())
}

// StreamStarted increments the active gauge and returns the matching decrement.
func (m *ChatMetrics) StreamStarted() func() {
	if m == nil {
		return func() {}
	}
	m.activeStreams.Inc()
	return m.activeStreams.Dec
}

func (m *ChatMetrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Registry is exposed for tests.
func (m *ChatMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *ChatMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
