package pricing

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

var asOf = time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC)

func newTestCalculator(p contracts.Predictor) *Calculator {
	return NewCalculator(strategyconfig.Default().Pricing, p, logger.Nop())
}

// waveHistory oscillates around base with the given amplitude and period
func waveHistory(n int, base, amp float64, period int) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	for i := range bars {
		c := base + amp*math.Sin(2*math.Pi*float64(i)/float64(period))
		bars[i] = contracts.Bar{
			Date:   asOf.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000 + int64(i%7)*100,
		}
	}
	return bars
}

func randomWalk(r *rand.Rand, n int, start float64) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	price := start
	for i := range bars {
		price *= 1 + (r.Float64()-0.5)*0.06
		high := price * (1 + r.Float64()*0.03)
		low := price * (1 - r.Float64()*0.03)
		bars[i] = contracts.Bar{
			Date:   asOf.AddDate(0, 0, i-n+1),
			Open:   price,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: int64(1000 + r.Intn(5000)),
		}
	}
	return bars
}

type fixedPredictor struct {
	pred contracts.Prediction
}

func (f fixedPredictor) Name() string { return "fixed" }

func (f fixedPredictor) Predict(string, float64, []contracts.Bar) (contracts.Prediction, bool) {
	return f.pred, true
}

func TestRoundPsychological(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{730, 750},
		{1234, 1200},
		{50300, 50500},
		{98750, 99000},
		{98740, 98500},
		{123400, 123000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundPsychological(tt.in), "in=%v", tt.in)
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 10550.0, RoundTo(10552.5, 10))
	assert.Equal(t, 10560.0, RoundTo(10555, 10))
	assert.Equal(t, 10300.0, RoundTo(10302, 10))
	assert.Equal(t, 10310.0, CeilTo(10301, 10))
	assert.Equal(t, 10300.0, CeilTo(10300, 10))
}

func TestFindLevels(t *testing.T) {
	d := NewDetector(5, 5)
	history := waveHistory(120, 50000, 3000, 20)

	levels := d.FindLevels(history, 60)
	assert.Less(t, levels.Support, levels.Resistance)
	assert.Greater(t, levels.SwingLows, 0)
	assert.Greater(t, levels.SwingHighs, 0)
	assert.Equal(t, 0.0, math.Mod(levels.Support, 500), "psychological unit")
	assert.Equal(t, 0.0, math.Mod(levels.Resistance, 500))
	assert.InDelta(t, 47000*0.99, levels.Support, 600)
	assert.InDelta(t, 53000*1.01, levels.Resistance, 600)

	last := history[len(history)-1]
	pivot := (last.High + last.Low + last.Close) / 3
	assert.InDelta(t, pivot, levels.Pivot, 1e-9)
	assert.InDelta(t, 2*pivot-last.Low, levels.R1, 1e-9)
	assert.InDelta(t, 2*pivot-last.High, levels.S1, 1e-9)
	assert.InDelta(t, pivot+(last.High-last.Low), levels.R2, 1e-9)
	assert.InDelta(t, pivot-(last.High-last.Low), levels.S2, 1e-9)
	assert.Greater(t, levels.SupportStrength, 0.0)
}

func TestFindLevels_NoSwingsFallsBackToExtremes(t *testing.T) {
	// 단조 증가: 스윙 없음
	bars := make([]contracts.Bar, 60)
	for i := range bars {
		c := 20000 + float64(i)*100
		bars[i] = contracts.Bar{High: c + 50, Low: c - 50, Close: c, Volume: 100}
	}
	levels := NewDetector(5, 5).FindLevels(bars, 60)
	assert.Equal(t, 0, levels.SwingLows)
	assert.Equal(t, 0, levels.SwingHighs)
	assert.Equal(t, RoundPsychological(19950), levels.Support)
	assert.Equal(t, RoundPsychological(25950), levels.Resistance)
}

func TestFindLevels_NarrowRangeKeepsOrdering(t *testing.T) {
	// 반올림하면 둘 다 10000이 되는 좁은 구간
	bars := make([]contracts.Bar, 60)
	for i := range bars {
		c := 10010 + float64(i%3)*10
		bars[i] = contracts.Bar{High: c + 5, Low: c - 5, Close: c, Volume: 100}
	}
	levels := NewDetector(5, 5).FindLevels(bars, 60)
	assert.Less(t, levels.Support, levels.Resistance)
	assert.Equal(t, 10005.0, levels.Support)
	assert.Equal(t, 10035.0, levels.Resistance)
}

func TestFindLevels_RandomHistoriesKeepOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	d := NewDetector(5, 5)
	for i := 0; i < 200; i++ {
		history := randomWalk(r, 80, 500+r.Float64()*200000)
		levels := d.FindLevels(history, 60)
		require.Less(t, levels.Support, levels.Resistance, "history %d", i)
	}
}

func TestStrength(t *testing.T) {
	bars := []contracts.Bar{
		{Low: 10000, High: 10500, Volume: 200},
		{Low: 10100, High: 10600, Volume: 200},
		{Low: 11000, High: 11500, Volume: 100},
		{Low: 11200, High: 11800, Volume: 100},
	}
	// two support touches, touch volume 200 vs avg 150
	assert.InDelta(t, 20+200.0/150*25, Strength(bars, 10000, true), 1e-9)
	assert.Equal(t, 0.0, Strength(bars, 5000, true))
	assert.Equal(t, 0.0, Strength(nil, 10000, true))
}

func TestEntryPremium(t *testing.T) {
	c := newTestCalculator(nil)
	assert.InDelta(t, 1.0, c.entryPremium(50, true, false), 1e-9)
	assert.InDelta(t, 0.7, c.entryPremium(25, true, false), 1e-9)
	assert.InDelta(t, 0.9, c.entryPremium(25, true, true), 1e-9)
	assert.InDelta(t, 1.3, c.entryPremium(75, true, false), 1e-9)
	assert.InDelta(t, 1.5, c.entryPremium(75, true, true), 1e-9)
	assert.InDelta(t, 1.2, c.entryPremium(0, false, true), 1e-9)
}

func TestQuote_BuyBelowSupportIsClamped(t *testing.T) {
	c := newTestCalculator(nil)
	q, err := c.quote(quoteInput{current: 10000, support: 10500, resistance: 12000, atr: 200, premiumPct: 1.0})
	require.NoError(t, err)

	assert.True(t, q.buyClamped)
	assert.Equal(t, RoundTo(10500*1.005, 10), q.buy)
	assert.Equal(t, 10550.0, q.buy)
	assert.Equal(t, 12000.0, q.target)
	assert.Equal(t, TargetFromResistance, q.targetSource)
	assert.Equal(t, 10290.0, q.stop)
	assert.False(t, q.widened)
}

func TestQuote_AllTargetsBelowBuyUsesDefault(t *testing.T) {
	c := newTestCalculator(nil)
	q, err := c.quote(quoteInput{current: 10000, support: 9500, resistance: 10000, atr: 10, premiumPct: 1.0})
	require.NoError(t, err)

	assert.Equal(t, TargetDefault, q.targetSource)
	assert.Equal(t, 10100.0, q.buy)
	assert.Equal(t, RoundTo(10100*1.02, 10), q.target)
	assert.Equal(t, 9980.0, q.stop)
	assert.InDelta(t, 1.67, q.riskReward, 1e-9)
}

func TestQuote_LowRiskRewardWidensTarget(t *testing.T) {
	c := newTestCalculator(nil)
	q, err := c.quote(quoteInput{current: 10000, support: 9800, resistance: 10150, atr: 300, premiumPct: 1.0})
	require.NoError(t, err)

	assert.True(t, q.widened)
	assert.Equal(t, 10100.0, q.buy)
	assert.Equal(t, 9600.0, q.stop)
	assert.Equal(t, 10600.0, q.target)
	assert.Equal(t, 1.0, q.riskReward)
	assert.InDelta(t, 4.95, q.predictedReturn, 1e-9)
}

func TestQuote_BullishPredictionCanSetTarget(t *testing.T) {
	c := newTestCalculator(nil)
	pred := contracts.Prediction{Price: 10500, Confidence: 60, Bullish: true}
	q, err := c.quote(quoteInput{current: 10000, support: 9000, resistance: 11000, atr: 50, premiumPct: 1.0, prediction: &pred})
	require.NoError(t, err)

	assert.Equal(t, TargetFromPredictor, q.targetSource)
	assert.Equal(t, 10500.0, q.target)
	assert.Equal(t, 9900.0, q.stop)
	assert.Equal(t, 2.0, q.riskReward)

	bearish := contracts.Prediction{Price: 10500, Confidence: 50}
	q, err = c.quote(quoteInput{current: 10000, support: 9000, resistance: 11000, atr: 50, premiumPct: 1.0, prediction: &bearish})
	require.NoError(t, err)
	assert.Equal(t, TargetFromResistance, q.targetSource)
}

func TestCalculatePrices_InsufficientHistory(t *testing.T) {
	c := newTestCalculator(TechnicalProjection{})
	out := c.CalculatePrices("005930", 70000, waveHistory(59, 70000, 1000, 20))
	require.False(t, out.Ok())
	assert.Equal(t, contracts.KindInsufficientHistory, out.Excluded.Kind)
}

func TestCalculatePrices(t *testing.T) {
	c := newTestCalculator(TechnicalProjection{})
	history := waveHistory(200, 70000, 2500, 30)
	current := history[len(history)-1].Close

	out := c.CalculatePrices("005930", current, history)
	require.True(t, out.Ok())

	sig := out.Value
	assert.Equal(t, "005930", sig.Code)
	assert.Equal(t, contracts.SignalPending, sig.Status)
	assert.True(t, sig.IsValid(0.8))
	assert.Equal(t, 0.0, math.Mod(sig.BuyPrice, 10))
	assert.Equal(t, 0.0, math.Mod(sig.TargetPrice, 10))
	assert.Equal(t, 0.0, math.Mod(sig.StopLossPrice, 10))
	assert.Greater(t, sig.ATR, 0.0)
	assert.Equal(t, PredictorTechnical, sig.CalculationDetails["predictor"])
	assert.Contains(t, sig.CalculationDetails, "support_strength")
	assert.Contains(t, []float64{50, 60}, sig.AIConfidence)
}

func TestCalculatePrices_ATRFallback(t *testing.T) {
	c := newTestCalculator(NoPrediction{})
	bars := make([]contracts.Bar, 60)
	for i := range bars {
		bars[i] = contracts.Bar{Open: 5000, High: 5000, Low: 5000, Close: 5000, Volume: 100}
	}

	out := c.CalculatePrices("FLAT", 5000, bars)
	require.True(t, out.Ok())
	assert.Equal(t, 150.0, out.Value.ATR)
	assert.Equal(t, true, out.Value.CalculationDetails["atr_fallback"])
	assert.Equal(t, 0.0, out.Value.AIConfidence)
	assert.True(t, out.Value.IsValid(0.8))
}

func TestCalculatePrices_RandomHistoriesSatisfyInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	c := newTestCalculator(TechnicalProjection{})

	for i := 0; i < 300; i++ {
		history := randomWalk(r, 60+r.Intn(140), 1000+r.Float64()*300000)
		current := history[len(history)-1].Close

		out := c.CalculatePrices("X", current, history)
		require.True(t, out.Ok(), "history %d: %+v", i, out.Excluded)
		sig := out.Value
		require.Less(t, sig.StopLossPrice, sig.BuyPrice, "history %d", i)
		require.Less(t, sig.BuyPrice, sig.TargetPrice, "history %d", i)
		require.GreaterOrEqual(t, sig.RiskRewardRatio, 0.8, "history %d", i)
	}
}

type fakeBars map[string][]contracts.Bar

func (f fakeBars) GetDailyBars(_ context.Context, code string, _, _ time.Time) ([]contracts.Bar, error) {
	if code == "ERR" {
		return nil, errors.New("timeout")
	}
	return f[code], nil
}

func TestPriceSelections(t *testing.T) {
	src := fakeBars{
		"005930": waveHistory(200, 70000, 2500, 30),
		"SHORT":  waveHistory(30, 70000, 2500, 30),
	}
	selections := []contracts.TechnicalSelection{
		{ID: 11, Code: "005930", Name: "삼성전자", Rank: 1},
		{ID: 12, Code: "SHORT", Name: "short", Rank: 2},
		{ID: 13, Code: "ERR", Name: "err", Rank: 3},
		{ID: 14, Code: "EMPTY", Name: "empty", Rank: 4},
	}

	c := newTestCalculator(fixedPredictor{pred: contracts.Prediction{Price: 1, Confidence: 70}})
	signals, excluded, err := c.PriceSelections(context.Background(), src, asOf, selections)
	require.NoError(t, err)

	require.Len(t, signals, 1)
	assert.Equal(t, int64(11), signals[0].TechSelectionID)
	assert.Equal(t, "삼성전자", signals[0].Name)
	assert.Equal(t, 70.0, signals[0].AIConfidence)

	require.Len(t, excluded, 3)
	assert.Equal(t, contracts.KindInsufficientHistory, excluded[0].Kind)
	assert.Equal(t, contracts.KindDataUnavailable, excluded[1].Kind)
	assert.Equal(t, contracts.KindInsufficientHistory, excluded[2].Kind)
}

func TestTechnicalProjection(t *testing.T) {
	rising := make([]contracts.Bar, 30)
	for i := range rising {
		rising[i] = contracts.Bar{Close: 1000 + float64(i)*10}
	}
	pred, ok := TechnicalProjection{}.Predict("X", 1290, rising)
	require.True(t, ok)
	assert.True(t, pred.Bullish)
	assert.Equal(t, 60.0, pred.Confidence)
	// sma5=1270, sma20=1195 → strength 6.28% capped at 5
	assert.InDelta(t, 1290*1.05, pred.Price, 1e-6)

	falling := make([]contracts.Bar, 30)
	for i := range falling {
		falling[i] = contracts.Bar{Close: 2000 - float64(i)*10}
	}
	pred, ok = TechnicalProjection{}.Predict("X", 1710, falling)
	require.True(t, ok)
	assert.False(t, pred.Bullish)
	assert.Equal(t, 50.0, pred.Confidence)
	assert.InDelta(t, 1710*1.01, pred.Price, 1e-6)

	_, ok = NoPrediction{}.Predict("X", 1, rising)
	assert.False(t, ok)
}

func TestNewPredictor(t *testing.T) {
	p, err := NewPredictor("technical")
	require.NoError(t, err)
	assert.Equal(t, PredictorTechnical, p.Name())

	p, err = NewPredictor("none")
	require.NoError(t, err)
	assert.Equal(t, PredictorNone, p.Name())

	_, err = NewPredictor("lstm")
	assert.Error(t, err)
}
