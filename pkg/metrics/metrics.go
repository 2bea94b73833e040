// Package metrics exposes Prometheus collectors for the chat and thread APIs.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "design_team"

// Metrics holds every collector the service reports.
type Metrics struct {
	threadQueries  *prometheus.CounterVec
	chatRuns       *prometheus.CounterVec
	chatDuration   prometheus.Histogram
	stepsEmitted   *prometheus.CounterVec
	llmRequests    *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	wsConnections  prometheus.Gauge
	sessionsPruned *prometheus.CounterVec
}

// MustNew constructs and registers the collectors. A nil registerer uses
// the default registry. Collectors already registered under the same name
// are reused.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		threadQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threads",
			Name:      "queries_total",
			Help:      "Thread data layer operations by outcome.",
		}, []string{"operation", "result"}),
		chatRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "runs_total",
			Help:      "Agent pipeline runs started from a chat message, by outcome.",
		}, []string{"result"}),
		chatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one user turn through the agent pipeline.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		stepsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "steps_emitted_total",
			Help:      "UI steps produced from live agent events.",
		}, []string{"type"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Model generate calls by model and outcome.",
		}, []string{"model", "result"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Latency of model generate calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Currently open WebSocket connections.",
		}),
		sessionsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "sessions_deleted_total",
			Help:      "Sessions removed by the retention loop.",
		}, []string{"reason"}),
	}

	m.threadQueries = register(reg, m.threadQueries)
	m.chatRuns = register(reg, m.chatRuns)
	m.chatDuration = register(reg, m.chatDuration)
	m.stepsEmitted = register(reg, m.stepsEmitted)
	m.llmRequests = register(reg, m.llmRequests)
	m.llmDuration = register(reg, m.llmDuration)
	m.wsConnections = register(reg, m.wsConnections)
	m.sessionsPruned = register(reg, m.sessionsPruned)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ThreadQuery counts one thread data layer operation.
func (m *Metrics) ThreadQuery(operation string, err error) {
	if m == nil {
		return
	}
	m.threadQueries.WithLabelValues(operation, result(err)).Inc()
}

// ChatRun records a finished pipeline run.
func (m *Metrics) ChatRun(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.chatRuns.WithLabelValues(result(err)).Inc()
	m.chatDuration.Observe(duration.Seconds())
}

// StepEmitted counts a step streamed to the UI.
func (m *Metrics) StepEmitted(stepType string) {
	if m == nil {
		return
	}
	m.stepsEmitted.WithLabelValues(stepType).Inc()
}

// LLMRequest records one model call.
func (m *Metrics) LLMRequest(model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, result(err)).Inc()
	m.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// WSConnected adjusts the open connection gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.wsConnections.Add(float64(delta))
}

// SessionsPruned counts sessions deleted by retention.
func (m *Metrics) SessionsPruned(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsPruned.WithLabelValues(reason).Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
