package llm

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Rate is the USD price per 1K tokens
type Rate struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

// Rates per provider
var Rates = map[string]Rate{
	ProviderOpenAI:    {Input: decimal.RequireFromString("0.03"), Output: decimal.RequireFromString("0.06")},
	ProviderAnthropic: {Input: decimal.RequireFromString("0.015"), Output: decimal.RequireFromString("0.075")},
}

var thousand = decimal.NewFromInt(1000)

// EstimateCost converts token usage to USD. Unknown providers cost nothing.
func EstimateCost(provider string, promptTokens, completionTokens int) decimal.Decimal {
	rate, ok := Rates[provider]
	if !ok {
		return decimal.Zero
	}
	in := decimal.NewFromInt(int64(promptTokens)).Div(thousand).Mul(rate.Input)
	out := decimal.NewFromInt(int64(completionTokens)).Div(thousand).Mul(rate.Output)
	return in.Add(out)
}

// CostSummary reports cumulative spend. Budgets are informational only.
type CostSummary struct {
	Provider            string  `json:"provider"`
	TotalCalls          int     `json:"total_calls"`
	CachedCalls         int     `json:"cached_calls"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
	Screenings          int     `json:"screenings"`
	AvgCostPerScreening float64 `json:"avg_cost_per_screening"`
	DailyBudget         float64 `json:"daily_budget"`
	MonthlyBudget       float64 `json:"monthly_budget"`
}

// CostTracker accumulates completion spend for one client
type CostTracker struct {
	mu            sync.Mutex
	provider      string
	calls         int
	cached        int
	total         decimal.Decimal
	screenings    int
	dailyBudget   float64
	monthlyBudget float64
}

// NewCostTracker creates a tracker with reporting budgets
func NewCostTracker(provider string, dailyBudget, monthlyBudget float64) *CostTracker {
	return &CostTracker{
		provider:      provider,
		total:         decimal.Zero,
		dailyBudget:   dailyBudget,
		monthlyBudget: monthlyBudget,
	}
}

// RecordCall adds one provider call
func (t *CostTracker) RecordCall(cost decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.total = t.total.Add(cost)
}

// RecordCacheHit counts a call served from cache
func (t *CostTracker) RecordCacheHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cached++
}

// RecordScreening counts one completed screening
func (t *CostTracker) RecordScreening() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screenings++
}

// Summary returns a snapshot of the counters
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	avg := decimal.Zero
	if t.screenings > 0 {
		avg = t.total.Div(decimal.NewFromInt(int64(t.screenings)))
	}
	return CostSummary{
		Provider:            t.provider,
		TotalCalls:          t.calls,
		CachedCalls:         t.cached,
		TotalCostUSD:        t.total.Round(6).InexactFloat64(),
		Screenings:          t.screenings,
		AvgCostPerScreening: avg.Round(6).InexactFloat64(),
		DailyBudget:         t.dailyBudget,
		MonthlyBudget:       t.monthlyBudget,
	}
}
