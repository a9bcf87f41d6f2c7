package market

import (
	"math"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/indicators"
)

// Sentiment blend weights, in SentimentSignals.Values() order
var sentimentWeights = []float64{0.40, 0.20, 0.15, 0.10, 0.15}

// Classification thresholds
const (
	bullishAbove = 65.0
	bearishBelow = 35.0
)

// Confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// MACD directions
const (
	DirectionBullish = "BULLISH"
	DirectionBearish = "BEARISH"
	DirectionNeutral = "NEUTRAL"
)

type technicals struct {
	rsi           float64
	macdDirection string
	score         float64
}

// indexTechnicals scores index RSI (40%) and MACD histogram direction (60%)
func indexTechnicals(closes []float64) technicals {
	t := technicals{rsi: 50, macdDirection: DirectionNeutral, score: 50}
	if len(closes) < indicators.RSIPeriod {
		return t
	}

	if v, ok := indicators.Last(indicators.RSI(closes, indicators.RSIPeriod)); ok {
		t.rsi = math.Min(math.Max(v, 0), 100)
	}

	if len(closes) >= indicators.MACDSlow {
		hist := indicators.MACD(closes, indicators.MACDFast, indicators.MACDSlow, indicators.MACDSignal).Histogram
		cur, prev := hist[len(hist)-1], hist[len(hist)-2]
		switch {
		case cur > prev:
			t.macdDirection = DirectionBullish
		case cur < prev:
			t.macdDirection = DirectionBearish
		}
	}

	var rsiScore float64
	switch {
	case t.rsi > 70:
		rsiScore = 25
	case t.rsi < 30:
		rsiScore = 75
	case t.rsi > 50:
		rsiScore = 65
	default:
		rsiScore = 35
	}

	macdScore := 50.0
	switch t.macdDirection {
	case DirectionBullish:
		macdScore = 75
	case DirectionBearish:
		macdScore = 25
	}

	t.score = math.Trunc(rsiScore*0.4 + macdScore*0.6)
	return t
}

// VolumeAdjustment is the ±10 sentiment delta from the 20-bar volume ratio
func VolumeAdjustment(ratio float64, ok bool) float64 {
	if !ok {
		return 0
	}
	switch {
	case ratio > 1.3:
		return 10
	case ratio > 1.0:
		return 5
	case ratio > 0.7:
		return -5
	default:
		return -10
	}
}

// Convergence returns 1 - popstd/50 (floored at 0) and its confidence multiplier
func Convergence(values []float64) (convergence, multiplier float64) {
	convergence = math.Max(0, 1.0-indicators.PopStdDev(values)/50.0)
	switch {
	case convergence > 0.8:
		multiplier = 1.15
	case convergence > 0.6:
		multiplier = 1.10
	case convergence > 0.4:
		multiplier = 1.0
	case convergence > 0.2:
		multiplier = 0.85
	default:
		multiplier = 0.7
	}
	return convergence, multiplier
}

func investorSignal(f contracts.MarketFlows) float64 {
	big := f.Foreign + f.Institution
	switch {
	case big > 0 && f.Retail < 0:
		return math.Min(85, 50+math.Abs(f.Retail)/1e10)
	case big > 0:
		return 60
	case big < 0 && f.Retail < 0:
		return 20
	default:
		return 50
	}
}

func trendSignal(t contracts.Trend) float64 {
	switch t {
	case contracts.TrendUp:
		return 75
	case contracts.TrendDown:
		return 25
	default:
		return 50
	}
}

func indexSignal(change, adRatio float64) float64 {
	var s float64
	switch {
	case change > 1.5:
		s = 75
	case change > 0.5:
		s = 60
	case change > -0.5:
		s = 50
	case change > -1.5:
		s = 40
	default:
		s = 25
	}
	switch {
	case adRatio > 0.55:
		s = math.Min(100, s+10)
	case adRatio < 0.45:
		s = math.Max(0, s-10)
	}
	return s
}

// judgeSentiment fills signals, convergence and the final classification.
// Requires momentum, flows, trend, breadth and volume adjustment on snap.
func judgeSentiment(snap *contracts.MarketSnapshot, technicalScore float64) {
	flows := contracts.MarketFlows{
		Foreign:     snap.ForeignNet,
		Institution: snap.InstitutionNet,
		Retail:      snap.RetailNet,
	}
	snap.Signals = contracts.SentimentSignals{
		Momentum:       float64(snap.MomentumScore),
		InvestorFlow:   investorSignal(flows),
		Trend:          trendSignal(snap.KOSPITrend),
		IndexTechnical: indexSignal(snap.KOSPIChangePct, snap.AdvanceDeclineRatio),
		RSIMACD:        technicalScore,
	}

	values := snap.Signals.Values()
	var weighted, weightSum float64
	for i, v := range values {
		weighted += v * sentimentWeights[i]
		weightSum += sentimentWeights[i]
	}
	weighted /= weightSum

	snap.SignalConvergence, snap.ConvergenceMultiplier = Convergence(values)
	final := (weighted + snap.VolumeAdjustment) * snap.ConvergenceMultiplier
	snap.SentimentScore = math.Round(math.Min(math.Max(final, 0), 100)*100) / 100

	snap.Sentiment, snap.ConfidenceLevel = Classify(final, snap.MomentumScore,
		snap.MomentumBreakdown.InvestorBalance, snap.Signals.InvestorFlow, snap.SignalConvergence)
}

// Classify maps the final score to a sentiment and confidence level.
// A NEUTRAL score is promoted to BULLISH when momentum > 60, the balance
// sub-score > 10 and the investor-flow signal > 65.
func Classify(final float64, momentum, balance int, investorFlow, convergence float64) (contracts.Sentiment, string) {
	switch {
	case final > bullishAbove:
		return contracts.SentimentBullish, ConfidenceHigh
	case final < bearishBelow:
		return contracts.SentimentBearish, ConfidenceHigh
	}

	if momentum > 60 && balance > 10 && investorFlow > 65 {
		return contracts.SentimentBullish, ConfidenceMedium
	}
	if convergence < 0.4 {
		return contracts.SentimentNeutral, ConfidenceLow
	}
	return contracts.SentimentNeutral, ConfidenceMedium
}
