package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// fakeSource is an in-memory MarketDataSource
type fakeSource struct {
	index   map[string][]contracts.Bar
	flows   *contracts.MarketFlows
	sectors map[string]float64
	breadth *contracts.Breadth
	err     error
}

func (f *fakeSource) GetIndexBars(ctx context.Context, index string, end time.Time, n int) ([]contracts.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []contracts.Bar
	for _, b := range f.index[index] {
		if !b.Date.After(end) {
			out = append(out, b)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (f *fakeSource) GetMarketFlows(ctx context.Context, date time.Time) (*contracts.MarketFlows, error) {
	if f.flows == nil {
		return nil, nil
	}
	cp := *f.flows
	cp.Date = date
	return &cp, nil
}

func (f *fakeSource) GetSectorPerformance(ctx context.Context, date time.Time) (map[string]float64, error) {
	return f.sectors, nil
}

func (f *fakeSource) GetBreadth(ctx context.Context, date time.Time) (*contracts.Breadth, error) {
	return f.breadth, nil
}

var analysisDate = time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC)

func risingBars(code string, n int, start, step float64) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	for i := 0; i < n; i++ {
		c := start + float64(i)*step
		bars[i] = contracts.Bar{
			Code:   code,
			Date:   analysisDate.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c + 5,
			Low:    c - 5,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		index: map[string][]contracts.Bar{
			contracts.IndexKOSPI:  risingBars(contracts.IndexKOSPI, 60, 2500, 2),
			contracts.IndexKOSDAQ: risingBars(contracts.IndexKOSDAQ, 60, 800, 1),
		},
		flows:   &contracts.MarketFlows{Foreign: 60e9, Institution: 10e9, Retail: -25e9},
		sectors: map[string]float64{"IT": 1.5, "Finance": 1.2, "Steel": -0.1},
		breadth: &contracts.Breadth{Advancing: 600, Declining: 400},
	}
}

func newTestAnalyzer(src contracts.MarketDataSource) *Analyzer {
	return NewAnalyzer(src, strategyconfig.Default().Market, logger.Nop())
}

func TestAnalyze(t *testing.T) {
	snap, err := newTestAnalyzer(newFakeSource()).Analyze(context.Background(), analysisDate)
	require.NoError(t, err)

	assert.Equal(t, 2618.0, snap.KOSPIClose)
	assert.InDelta(t, 2.0/2616.0*100, snap.KOSPIChangePct, 1e-9)
	assert.Equal(t, contracts.TrendRange, snap.KOSPITrend)
	assert.Equal(t, 0.6, snap.AdvanceDeclineRatio)
	assert.Equal(t, 600, snap.AdvancingCount)
	assert.Equal(t, []string{"IT", "Finance", "Steel"}, snap.TopSectors)

	assert.GreaterOrEqual(t, snap.MomentumScore, 0)
	assert.LessOrEqual(t, snap.MomentumScore, 100)
	assert.Contains(t, []contracts.Sentiment{contracts.SentimentBullish, contracts.SentimentNeutral, contracts.SentimentBearish}, snap.Sentiment)

	// flat volume: ratio 1.0 is not above 1.0
	assert.Equal(t, 1.0, snap.VolumeRatio)
	assert.Equal(t, -5.0, snap.VolumeAdjustment)

	require.Len(t, snap.Trend7d, 7)
	assert.True(t, snap.Trend7d[0].Date.Before(snap.Trend7d[6].Date))
	assert.Equal(t, analysisDate, snap.Trend7d[6].Date)
	assert.Equal(t, PatternUp, snap.TrendAnalysis.Direction)
	assert.Equal(t, ForeignSustainedBuy, snap.TrendAnalysis.ForeignTrend)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := newTestAnalyzer(newFakeSource())

	first, err := a.Analyze(context.Background(), analysisDate)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), analysisDate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyzeMissingIndex(t *testing.T) {
	src := newFakeSource()
	delete(src.index, contracts.IndexKOSDAQ)

	_, err := newTestAnalyzer(src).Analyze(context.Background(), analysisDate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))

	src = newFakeSource()
	src.err = errors.New("connection refused")
	_, err = newTestAnalyzer(src).Analyze(context.Background(), analysisDate)
	assert.True(t, contracts.IsKind(err, contracts.KindDataUnavailable))
}

func TestAnalyzeWithoutBreadthUsesTrend(t *testing.T) {
	src := newFakeSource()
	src.breadth = nil
	src.flows = nil

	snap, err := newTestAnalyzer(src).Analyze(context.Background(), analysisDate)
	require.NoError(t, err)

	assert.Equal(t, 0.5, snap.AdvanceDeclineRatio)
	assert.Equal(t, 0.0, snap.ForeignNet)
	// no flows → every trend day skipped
	assert.Empty(t, snap.Trend7d)
	assert.Equal(t, PatternUnknown, snap.TrendAnalysis.Direction)
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		change float64
		want   contracts.Trend
	}{
		{0.51, contracts.TrendUp},
		{0.5, contracts.TrendRange},
		{0, contracts.TrendRange},
		{-0.5, contracts.TrendRange},
		{-0.51, contracts.TrendDown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyTrend(tt.change), "change=%v", tt.change)
	}
}

func TestMomentum(t *testing.T) {
	flows := contracts.MarketFlows{Foreign: 60e9, Institution: 10e9, Retail: -25e9}
	sectors := map[string]float64{"IT": 1.5, "Finance": 1.2, "Steel": -0.1}

	b := Momentum(1.2, flows, sectors, 0.65)

	assert.Equal(t, 15, b.IndexTrend)
	assert.Equal(t, 15+5+5, b.InvestorFlow)
	assert.Equal(t, 15, b.InvestorBalance)
	// avg 0.87 → 7, 2/3 positive → 7
	assert.Equal(t, 14, b.SectorMomentum)
	assert.Equal(t, 10, b.MarketBreadth)
	assert.Equal(t, 79, b.Raw)
	assert.Equal(t, 96, NormalizeMomentum(b.Raw))
}

func TestMomentumBounds(t *testing.T) {
	worst := Momentum(-3, contracts.MarketFlows{Foreign: -100e9, Institution: -100e9, Retail: 50e9},
		map[string]float64{"A": -2, "B": -3}, 0.1)
	assert.Equal(t, -20, worst.IndexTrend)
	assert.Equal(t, -15-10-2, worst.InvestorFlow)
	assert.Equal(t, -10, worst.InvestorBalance)
	assert.Equal(t, -20, worst.SectorMomentum)
	assert.Equal(t, -15, worst.MarketBreadth)
	assert.Equal(t, 0, NormalizeMomentum(worst.Raw))

	assert.Equal(t, 100, NormalizeMomentum(85))
	assert.Equal(t, 50, NormalizeMomentum(0))
	assert.Equal(t, 0, Momentum(0, contracts.MarketFlows{}, nil, 0.5).SectorMomentum)
}

func TestConvergence(t *testing.T) {
	c, m := Convergence([]float64{60, 60, 60, 60, 60})
	assert.Equal(t, 1.0, c)
	assert.Equal(t, 1.15, m)

	c, m = Convergence([]float64{0, 100, 0, 100, 50})
	assert.InDelta(t, 0.1056, c, 1e-3)
	assert.Equal(t, 0.7, m)

	_, m = Convergence([]float64{40, 60, 40, 60, 50})
	assert.Equal(t, 1.15, m)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		final       float64
		momentum    int
		balance     int
		investor    float64
		convergence float64
		want        contracts.Sentiment
		confidence  string
	}{
		{"bullish", 70, 50, 0, 50, 0.9, contracts.SentimentBullish, ConfidenceHigh},
		{"bearish", 30, 50, 0, 50, 0.9, contracts.SentimentBearish, ConfidenceHigh},
		{"override", 60, 65, 15, 70, 0.9, contracts.SentimentBullish, ConfidenceMedium},
		{"override needs flow", 60, 65, 15, 60, 0.9, contracts.SentimentNeutral, ConfidenceMedium},
		{"neutral low", 50, 50, 0, 50, 0.3, contracts.SentimentNeutral, ConfidenceLow},
		{"boundary 65", 65, 50, 0, 50, 0.5, contracts.SentimentNeutral, ConfidenceMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, conf := Classify(tt.final, tt.momentum, tt.balance, tt.investor, tt.convergence)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.confidence, conf)
		})
	}
}

func TestVolumeAdjustment(t *testing.T) {
	assert.Equal(t, 10.0, VolumeAdjustment(1.6, true))
	assert.Equal(t, 5.0, VolumeAdjustment(1.1, true))
	assert.Equal(t, -5.0, VolumeAdjustment(0.8, true))
	assert.Equal(t, -10.0, VolumeAdjustment(0.5, true))
	assert.Equal(t, 0.0, VolumeAdjustment(0, false))
}

func TestIndexTechnicals(t *testing.T) {
	short := indexTechnicals([]float64{1, 2, 3})
	assert.Equal(t, 50.0, short.rsi)
	assert.Equal(t, DirectionNeutral, short.macdDirection)
	assert.Equal(t, 50.0, short.score)

	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rising := indexTechnicals(closes)
	assert.Equal(t, 100.0, rising.rsi)
	assert.Equal(t, DirectionNeutral, rising.macdDirection, "MACD needs 26 bars")
	// overbought 25*0.4 + neutral 50*0.6
	assert.Equal(t, 40.0, rising.score)
}

func trendDays(changes, foreign []float64) []contracts.TrendDay {
	out := make([]contracts.TrendDay, len(changes))
	for i := range changes {
		out[i] = contracts.TrendDay{KOSPIChangePct: changes[i], ForeignFlow: foreign[i]}
	}
	return out
}

func TestAnalyzeTrendPattern(t *testing.T) {
	unknown := AnalyzeTrendPattern(trendDays([]float64{1, 1}, []float64{1, 1}))
	assert.Equal(t, PatternUnknown, unknown.Momentum)

	accel := AnalyzeTrendPattern(trendDays(
		[]float64{0.1, 0.1, 0.1, 0.1, 0.5, 0.6, 0.7},
		[]float64{1, 1, 1, 1, 1, 1, 1}))
	assert.Equal(t, contracts.TrendAnalysis{
		Direction: PatternUp, Momentum: PatternAccelerating, ReversalRisk: RiskLow, ForeignTrend: ForeignSustainedBuy,
	}, accel)

	fading := AnalyzeTrendPattern(trendDays(
		[]float64{-1, -1, -1, -1, -0.1, -0.1, -0.2},
		[]float64{-1, -1, -1, -1, 1, 1, -1}))
	assert.Equal(t, contracts.TrendAnalysis{
		Direction: PatternDown, Momentum: PatternDecelerating, ReversalRisk: RiskMedium, ForeignTrend: ForeignSustainedOut,
	}, fading)

	three := AnalyzeTrendPattern(trendDays([]float64{1, 1, 1}, []float64{1, -1, 1}))
	assert.Equal(t, PatternDecelerating, three.Momentum)
	assert.Equal(t, RiskHigh, three.ReversalRisk)
	assert.Equal(t, ForeignSustainedOut, three.ForeignTrend)

	changing := AnalyzeTrendPattern(trendDays(
		[]float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2},
		[]float64{1, 1, 1, 1, -1, 1, 1}))
	assert.Equal(t, ForeignChanging, changing.ForeignTrend)
}
