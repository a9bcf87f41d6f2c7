package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/indicators"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// Target sources recorded in calculation details
const (
	TargetFromResistance = "resistance"
	TargetFromATR        = "technical"
	TargetFromPredictor  = "predictor"
	TargetDefault        = "default"
)

// Calculator implements phase 5: price synthesis
// ⭐ SSOT: 매수/목표/손절가 계산은 여기서만
type Calculator struct {
	cfg       strategyconfig.Pricing
	detector  *Detector
	predictor contracts.Predictor
	logger    *logger.Logger
}

// NewCalculator creates a calculator with a fixed predictor variant
func NewCalculator(cfg strategyconfig.Pricing, predictor contracts.Predictor, log *logger.Logger) *Calculator {
	if predictor == nil {
		predictor = NoPrediction{}
	}
	return &Calculator{
		cfg:       cfg,
		detector:  NewDetector(cfg.SwingHalfWidth, cfg.SwingCount),
		predictor: predictor,
		logger:    log,
	}
}

// quoteInput is everything the price rules read
type quoteInput struct {
	current    float64
	support    float64
	resistance float64
	atr        float64
	premiumPct float64
	prediction *contracts.Prediction
}

// quote is the rounded result of the price rules
type quote struct {
	buy, target, stop float64
	riskReward        float64
	predictedReturn   float64
	targetSource      string
	buyClamped        bool
	stopClamped       bool
	widened           bool
}

// CalculatePrices synthesizes buy/target/stop for one instrument.
// Fewer than MinBars bars excludes the instrument.
func (c *Calculator) CalculatePrices(code string, current float64, history []contracts.Bar) contracts.Outcome[contracts.TradingSignal] {
	if len(history) < c.cfg.MinBars {
		return contracts.Exclude[contracts.TradingSignal](code, contracts.KindInsufficientHistory,
			fmt.Sprintf("%d bars < %d required", len(history), c.cfg.MinBars))
	}
	if current <= 0 || math.IsNaN(current) {
		return contracts.Exclude[contracts.TradingSignal](code, contracts.KindScoringError, "non-positive current price")
	}

	levels := c.detector.FindLevels(history, c.cfg.Lookback)

	atr, ok := indicators.Last(indicators.ATR(history, indicators.ATRPeriod))
	atrFallback := !ok || atr <= 0
	if atrFallback {
		atr = current * c.cfg.ATRFallbackPct
	}

	closes := contracts.Closes(history)
	rsi, rsiOK := indicators.Last(indicators.RSI(closes, indicators.RSIPeriod))
	m := indicators.MACD(closes, indicators.MACDFast, indicators.MACDSlow, indicators.MACDSignal)
	macd, okM := indicators.Last(m.MACD)
	signal, okS := indicators.Last(m.Signal)
	premium := c.entryPremium(rsi, rsiOK, macd > signal && okM && okS)

	in := quoteInput{
		current:    current,
		support:    levels.Support,
		resistance: levels.Resistance,
		atr:        atr,
		premiumPct: premium,
	}
	confidence := 0.0
	pred, hasPred := c.predictor.Predict(code, current, history)
	if hasPred {
		in.prediction = &pred
		confidence = pred.Confidence
	}

	q, err := c.quote(in)
	if err != nil {
		return contracts.Exclude[contracts.TradingSignal](code, contracts.KindScoringError, err.Error())
	}

	details := map[string]interface{}{
		"entry_premium_pct":      premium,
		"atr_fallback":           atrFallback,
		"buy_clamped_to_support": q.buyClamped,
		"stop_clamped_to_buy":    q.stopClamped,
		"target_source":          q.targetSource,
		"rr_widened":             q.widened,
		"technical_target":       current + c.cfg.ATRMultiple*atr,
		"predictor":              c.predictor.Name(),
		"r1":                     levels.R1,
		"s1":                     levels.S1,
		"r2":                     levels.R2,
		"s2":                     levels.S2,
		"high":                   levels.High,
		"low":                    levels.Low,
		"swing_lows":             levels.SwingLows,
		"swing_highs":            levels.SwingHighs,
		"support_strength":       levels.SupportStrength,
		"resistance_strength":    levels.ResistanceStrength,
	}
	if hasPred {
		details["predicted_price"] = pred.Price
		details["predicted_bullish"] = pred.Bullish
	}

	sig := contracts.TradingSignal{
		Code:               code,
		CurrentPrice:       current,
		BuyPrice:           q.buy,
		TargetPrice:        q.target,
		StopLossPrice:      q.stop,
		PredictedReturn:    q.predictedReturn,
		RiskRewardRatio:    q.riskReward,
		AIConfidence:       confidence,
		Support:            levels.Support,
		Resistance:         levels.Resistance,
		Pivot:              levels.Pivot,
		ATR:                atr,
		CalculationDetails: details,
		Status:             contracts.SignalPending,
	}
	if !sig.IsValid(c.cfg.MinRiskReward) {
		return contracts.Exclude[contracts.TradingSignal](code, contracts.KindValidationError,
			fmt.Sprintf("stop %.0f / buy %.0f / target %.0f with r/r %.2f", sig.StopLossPrice, sig.BuyPrice, sig.TargetPrice, sig.RiskRewardRatio))
	}
	return contracts.Keep(sig)
}

// entryPremium returns the entry premium in percent, clamped to [min, max]
func (c *Calculator) entryPremium(rsi float64, rsiOK, macdBullish bool) float64 {
	p := c.cfg.Premium
	premium := p.Base
	if rsiOK {
		switch {
		case rsi < 30:
			premium += p.OversoldAdj
		case rsi > 70:
			premium += p.OverboughtAdj
		}
	}
	if macdBullish {
		premium += p.MACDAdj
	}
	return math.Max(p.Min, math.Min(p.Max, premium))
}

// quote applies the buy/target/stop rules, then rounds to the price
// granularity while keeping stop < buy < target and the risk/reward floor
func (c *Calculator) quote(in quoteInput) (quote, error) {
	cfg := c.cfg
	var q quote

	buy := in.current * (1 + in.premiumPct/100)
	if buy < in.support {
		buy = in.support * (1 + cfg.SupportBuffer)
		q.buyClamped = true
	}

	technical := in.current + cfg.ATRMultiple*in.atr
	type candidate struct {
		price  float64
		source string
	}
	candidates := []candidate{
		{in.resistance, TargetFromResistance},
		{technical, TargetFromATR},
	}
	if in.prediction != nil && in.prediction.Bullish && in.prediction.Price > in.current {
		candidates = append(candidates, candidate{in.prediction.Price, TargetFromPredictor})
	}

	target := buy * (1 + cfg.DefaultTargetPct)
	q.targetSource = TargetDefault
	best := math.Inf(1)
	for _, t := range candidates {
		if t.price > buy && t.price < best {
			best = t.price
			q.targetSource = t.source
		}
	}
	if !math.IsInf(best, 1) {
		target = best
	}

	stop := math.Max(in.support*cfg.StopSupportRatio, in.current-cfg.ATRMultiple*in.atr)
	if stop >= buy {
		stop = buy * cfg.StopBuyRatio
		q.stopClamped = true
	}

	if (target-buy)/(buy-stop) < cfg.MinRiskReward {
		target = buy + cfg.WidenMultiple*(buy-stop)
		q.widened = true
	}

	g := cfg.Granularity
	q.buy = RoundTo(buy, g)
	q.target = RoundTo(target, g)
	q.stop = RoundTo(stop, g)

	if q.stop >= q.buy {
		q.stop = q.buy - g
	}
	if q.target <= q.buy {
		q.target = q.buy + g
	}
	if q.stop <= 0 {
		return q, fmt.Errorf("stop %.2f is not positive at granularity %.0f", q.stop, g)
	}
	if (q.target-q.buy)/(q.buy-q.stop) < cfg.MinRiskReward {
		q.target = CeilTo(q.buy+cfg.WidenMultiple*(q.buy-q.stop), g)
		q.widened = true
	}

	q.riskReward = round2((q.target - q.buy) / (q.buy - q.stop))
	q.predictedReturn = round2((q.target - q.buy) / q.buy * 100)
	return q, nil
}

// PriceSelections prices each selection from its history up to asOf.
// Excluded selections are returned separately; only a cancelled context is an error.
func (c *Calculator) PriceSelections(ctx context.Context, bars contracts.BarSource, asOf time.Time, selections []contracts.TechnicalSelection) ([]contracts.TradingSignal, []contracts.Exclusion, error) {
	var signals []contracts.TradingSignal
	var excluded []contracts.Exclusion

	from := asOf.AddDate(0, 0, -c.cfg.HistoryDays)
	for _, sel := range selections {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		history, err := bars.GetDailyBars(ctx, sel.Code, from, asOf)
		var out contracts.Outcome[contracts.TradingSignal]
		switch {
		case err != nil:
			out = contracts.Exclude[contracts.TradingSignal](sel.Code, contracts.KindDataUnavailable, err.Error())
		case len(history) == 0:
			out = contracts.Exclude[contracts.TradingSignal](sel.Code, contracts.KindInsufficientHistory, "no bars")
		default:
			out = c.CalculatePrices(sel.Code, history[len(history)-1].Close, history)
		}

		if !out.Ok() {
			excluded = append(excluded, *out.Excluded)
			c.logger.WithFields(map[string]interface{}{
				"code":   sel.Code,
				"kind":   string(out.Excluded.Kind),
				"reason": out.Excluded.Reason,
			}).Debug("Selection excluded from pricing")
			continue
		}

		sig := out.Value
		sig.TechSelectionID = sel.ID
		sig.Name = sel.Name
		signals = append(signals, sig)

		c.logger.WithFields(map[string]interface{}{
			"code":   sig.Code,
			"buy":    sig.BuyPrice,
			"target": sig.TargetPrice,
			"stop":   sig.StopLossPrice,
			"rr":     sig.RiskRewardRatio,
		}).Debug("Prices calculated")
	}
	return signals, excluded, nil
}

// RoundTo rounds v to the nearest multiple of step (half away from zero)
func RoundTo(v, step float64) float64 {
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Round(0).Mul(s).InexactFloat64()
}

// CeilTo rounds v up to a multiple of step
func CeilTo(v, step float64) float64 {
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Ceil().Mul(s).InexactFloat64()
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
