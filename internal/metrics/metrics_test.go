package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordRun("COMPLETED")
	m.RecordRun("COMPLETED")
	m.RecordRun("FAILED")
	m.RecordCompletion("openai", "success", 0.12)
	m.RecordCompletion("openai", "failure", 0)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordSignals(4)
	m.RecordSignals(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionCalls.WithLabelValues("openai", "failure")))
	assert.InDelta(t, 0.12, testutil.ToFloat64(m.CompletionCost.WithLabelValues("openai")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionCache.WithLabelValues("hit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Signals))
}

func TestPhaseTimer(t *testing.T) {
	m := New()

	d := m.StartPhase("phase2_market_analysis").Stop("success")
	assert.GreaterOrEqual(t, int64(d), int64(0))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PhaseDuration))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var m *Registry

	assert.NotPanics(t, func() {
		m.RecordRun("FAILED")
		m.RecordCompletion("anthropic", "success", 1)
		m.RecordCacheLookup(true)
		m.RecordSignals(3)
		m.StartPhase("phase1_data_collection").Stop("failure")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRun("COMPLETED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `autoquant_runs_total{status="COMPLETED"} 1`))
}
