package market

import (
	"context"
	"math"
	"time"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/indicators"
)

// Trend pattern labels
const (
	PatternUnknown      = "UNKNOWN"
	PatternUp           = "UPTREND"
	PatternDown         = "DOWNTREND"
	PatternAccelerating = "ACCELERATING"
	PatternDecelerating = "DECELERATING"
	RiskHigh            = "HIGH"
	RiskMedium          = "MEDIUM"
	RiskLow             = "LOW"
	ForeignSustainedBuy = "SUSTAINED_BUY"
	ForeignSustainedOut = "SUSTAINED_SELL"
	ForeignChanging     = "CHANGING"
)

// trend7d collects up to TrendDays sessions within TrendLookback calendar days, oldest first.
// Sessions without flow data are skipped.
func (a *Analyzer) trend7d(ctx context.Context, kospiBars []contracts.Bar, date time.Time) []contracts.TrendDay {
	days := a.cfg.TrendDays
	cutoff := date.AddDate(0, 0, -a.cfg.TrendLookback)

	var out []contracts.TrendDay
	for i := len(kospiBars) - 1; i >= 1 && len(out) < days; i-- {
		bar := kospiBars[i]
		if !bar.Date.After(cutoff) {
			break
		}
		prev := kospiBars[i-1].Close
		if prev == 0 {
			continue
		}

		flows, err := a.source.GetMarketFlows(ctx, bar.Date)
		if err != nil || flows == nil {
			a.logger.WithField("date", bar.Date.Format("2006-01-02")).Debug("Skipping trend day without flows")
			continue
		}

		change := (bar.Close - prev) / prev * 100
		out = append(out, contracts.TrendDay{
			Date:            bar.Date,
			KOSPIClose:      bar.Close,
			KOSPIChangePct:  change,
			ForeignFlow:     flows.Foreign,
			InstitutionFlow: flows.Institution,
			RetailFlow:      flows.Retail,
			Trend:           ClassifyTrend(change),
		})
	}

	// 오래된 날짜부터
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// AnalyzeTrendPattern labels direction, momentum, reversal risk and foreign trend.
// Fewer than 3 sessions is UNKNOWN across the board.
func AnalyzeTrendPattern(days []contracts.TrendDay) contracts.TrendAnalysis {
	if len(days) < 3 {
		return contracts.TrendAnalysis{
			Direction:    PatternUnknown,
			Momentum:     PatternUnknown,
			ReversalRisk: PatternUnknown,
			ForeignTrend: PatternUnknown,
		}
	}
	if len(days) > 7 {
		days = days[len(days)-7:]
	}

	changes := make([]float64, len(days))
	foreign := make([]float64, len(days))
	for i, d := range days {
		changes[i] = d.KOSPIChangePct
		foreign[i] = d.ForeignFlow
	}

	up := indicators.Mean(changes) > 0
	direction := PatternDown
	if up {
		direction = PatternUp
	}

	// 최근 3일 vs 그 이전. 이전 구간이 없으면 가속으로 보지 않음
	momentum := PatternDecelerating
	recent := changes[len(changes)-3:]
	earlier := changes[:len(changes)-3]
	if len(earlier) > 0 && math.Abs(indicators.Mean(recent)) > math.Abs(indicators.Mean(earlier)) {
		momentum = PatternAccelerating
	}

	var risk string
	switch {
	case up && momentum == PatternDecelerating:
		risk = RiskHigh
	case !up && momentum == PatternAccelerating:
		risk = RiskHigh
	case up && momentum == PatternAccelerating:
		risk = RiskLow
	default:
		risk = RiskMedium
	}

	positive := 0
	for _, f := range foreign {
		if f > 0 {
			positive++
		}
	}
	lastThreeBuy := true
	for _, f := range foreign[len(foreign)-3:] {
		if f <= 0 {
			lastThreeBuy = false
		}
	}

	var foreignTrend string
	switch {
	case lastThreeBuy:
		foreignTrend = ForeignSustainedBuy
	case positive < 3:
		foreignTrend = ForeignSustainedOut
	default:
		foreignTrend = ForeignChanging
	}

	return contracts.TrendAnalysis{
		Direction:    direction,
		Momentum:     momentum,
		ReversalRisk: risk,
		ForeignTrend: foreignTrend,
	}
}
