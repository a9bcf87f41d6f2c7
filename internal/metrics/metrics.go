package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the analysis pipeline.
// A nil *Registry is valid and records nothing.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	reg *prometheus.Registry

	PhaseDuration   *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	CompletionCalls *prometheus.CounterVec
	CompletionCost  *prometheus.CounterVec
	CompletionCache *prometheus.CounterVec
	Signals         prometheus.Counter
}

// New creates a registry with every pipeline metric registered
func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoquant_phase_duration_seconds",
				Help:    "Duration of each analysis phase in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"phase", "result"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoquant_runs_total",
				Help: "Analysis runs by terminal status",
			},
			[]string{"status"},
		),

		CompletionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoquant_completion_calls_total",
				Help: "Completion service calls by provider and result",
			},
			[]string{"provider", "result"},
		),

		CompletionCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoquant_completion_cost_usd_total",
				Help: "Estimated completion spend in USD",
			},
			[]string{"provider"},
		),

		CompletionCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoquant_completion_cache_total",
				Help: "Completion cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),

		Signals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autoquant_signals_generated_total",
				Help: "Trading signals persisted",
			},
		),
	}

	m.reg.MustRegister(
		m.PhaseDuration,
		m.Runs,
		m.CompletionCalls,
		m.CompletionCost,
		m.CompletionCache,
		m.Signals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry (tests, custom exporters)
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}

// PhaseTimer tracks execution time for one phase
type PhaseTimer struct {
	metrics *Registry
	phase   string
	start   time.Time
}

// StartPhase begins timing a phase
func (m *Registry) StartPhase(phase string) *PhaseTimer {
	return &PhaseTimer{metrics: m, phase: phase, start: time.Now()}
}

// Stop records the elapsed time under result ("success", "failure")
func (t *PhaseTimer) Stop(result string) time.Duration {
	d := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.PhaseDuration.WithLabelValues(t.phase, result).Observe(d.Seconds())
	}
	return d
}

// RecordRun counts a finished run
func (m *Registry) RecordRun(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}

// RecordCompletion counts one completion attempt and its cost
func (m *Registry) RecordCompletion(provider, result string, costUSD float64) {
	if m == nil {
		return
	}
	m.CompletionCalls.WithLabelValues(provider, result).Inc()
	if costUSD > 0 {
		m.CompletionCost.WithLabelValues(provider).Add(costUSD)
	}
}

// RecordCacheLookup counts a completion cache hit or miss
func (m *Registry) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CompletionCache.WithLabelValues(result).Inc()
}

// RecordSignals adds persisted signals
func (m *Registry) RecordSignals(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Signals.Add(float64(n))
}
