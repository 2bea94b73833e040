package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)

	m.ThreadQuery("list", nil)
	m.ThreadQuery("list", nil)
	m.ThreadQuery("get", errors.New("boom"))
	m.StepEmitted("tool")
	m.ChatRun(2*time.Second, nil)
	m.SessionsPruned("expired", 3)
	m.SessionsPruned("expired", 0)
	m.WSConnected(1)
	m.WSConnected(1)
	m.WSConnected(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.threadQueries.WithLabelValues("list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.threadQueries.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsEmitted.WithLabelValues("tool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatRuns.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsPruned.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))
}

func TestMetrics_ReRegisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNew(reg)
	second := MustNew(reg)

	first.ThreadQuery("list", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.threadQueries.WithLabelValues("list", "ok")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ThreadQuery("list", nil)
		m.ChatRun(time.Second, nil)
		m.StepEmitted("tool")
		m.LLMRequest("gemini", time.Second, nil)
		m.WSConnected(1)
		m.SessionsPruned("expired", 1)
	})
}
