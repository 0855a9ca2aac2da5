package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"

	OpCreate         = "create"
	OpUpdate         = "update"
	OpDuplicateRetry = "duplicate_retry"
)

// Metrics groups the chat log collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	Registry      *prometheus.Registry
	Requests      *prometheus.CounterVec
	Writes        *prometheus.CounterVec
	TranscriptLen prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_log_requests_total",
			Help: "Chat log requests by outcome.",
		}, []string{"outcome"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_conversations_written_total",
			Help: "Conversation document writes by operation.",
		}, []string{"op"}),
		TranscriptLen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_log_messages",
			Help:    "Number of messages carried by accepted chat log requests.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		}),
	}

	m.Registry.MustRegister(m.Requests, m.Writes, m.TranscriptLen)
	return m
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveWrite(op string, messages int) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(op).Inc()
	m.TranscriptLen.Observe(float64(messages))
}
