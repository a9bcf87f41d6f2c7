package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		provider   string
		prompt     int
		completion int
		want       string
	}{
		{ProviderOpenAI, 1000, 1000, "0.09"},
		{ProviderOpenAI, 2500, 0, "0.075"},
		{ProviderAnthropic, 1000, 1000, "0.09"},
		{ProviderAnthropic, 0, 2000, "0.15"},
		{"unknown", 1000, 1000, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			got := EstimateCost(tt.provider, tt.prompt, tt.completion)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCostTrackerSummary(t *testing.T) {
	tr := NewCostTracker(ProviderOpenAI, 10, 200)

	tr.RecordCall(EstimateCost(ProviderOpenAI, 1000, 500))
	tr.RecordCall(EstimateCost(ProviderOpenAI, 1000, 500))
	tr.RecordCacheHit()
	tr.RecordScreening()
	tr.RecordScreening()

	s := tr.Summary()
	assert.Equal(t, 2, s.TotalCalls)
	assert.Equal(t, 1, s.CachedCalls)
	assert.InDelta(t, 0.12, s.TotalCostUSD, 1e-9)
	assert.Equal(t, 2, s.Screenings)
	assert.InDelta(t, 0.06, s.AvgCostPerScreening, 1e-9)
	assert.Equal(t, 10.0, s.DailyBudget)
	assert.Equal(t, 200.0, s.MonthlyBudget)
}

func TestCostTrackerEmpty(t *testing.T) {
	s := NewCostTracker(ProviderAnthropic, 0, 0).Summary()
	assert.Equal(t, 0.0, s.TotalCostUSD)
	assert.Equal(t, 0.0, s.AvgCostPerScreening)
}
