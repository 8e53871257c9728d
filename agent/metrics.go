package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the loop's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	Turns          *prometheus.CounterVec
	Rounds         prometheus.Histogram
	ToolCalls      *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec
	MemoriesStored *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_turns_total",
				Help: "Completed user turns by termination reason",
			},
			[]string{"termination"},
		),
		Rounds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parley_turn_tool_rounds",
				Help:    "Tool rounds executed per turn",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
			},
		),
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_tool_calls_total",
				Help: "Executed tool calls by outcome",
			},
			[]string{"tool", "outcome"},
		),
		Rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_guard_rejections_total",
				Help: "Call sets rejected by the redundancy guard",
			},
			[]string{"reason"},
		),
		BackendLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "parley_backend_request_seconds",
				Help: "Backend request latency in seconds",
			},
			[]string{"provider"},
		),
		MemoriesStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_memories_stored_total",
				Help: "Memories written by importance",
			},
			[]string{"importance"},
		),
	}
}

func (m *Metrics) turn(t Termination, rounds int) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(t.String()).Inc()
	m.Rounds.Observe(float64(rounds))
}

func (m *Metrics) toolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) rejection(ceiling bool) {
	if m == nil {
		return
	}
	reason := "repeat"
	if ceiling {
		reason = "ceiling"
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) backend(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.BackendLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) memory(importance string) {
	if m == nil {
		return
	}
	m.MemoriesStored.WithLabelValues(importance).Inc()
}
