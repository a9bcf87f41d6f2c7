package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/indicators"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// Analyzer produces the daily market-condition snapshot (phase 2)
// ⭐ SSOT: 시장 심리/모멘텀 판단은 여기서만
type Analyzer struct {
	source contracts.MarketDataSource
	cfg    strategyconfig.Market
	logger *logger.Logger
}

// NewAnalyzer creates a market analyzer over the given data source
func NewAnalyzer(source contracts.MarketDataSource, cfg strategyconfig.Market, log *logger.Logger) *Analyzer {
	return &Analyzer{
		source: source,
		cfg:    cfg,
		logger: log,
	}
}

// indexQuote is the latest close and % change of an index
type indexQuote struct {
	close  float64
	change float64
}

// Analyze builds the snapshot for date.
// Missing index series is DataUnavailable; everything else degrades to neutral inputs.
// Identical source data always yields an identical snapshot.
func (a *Analyzer) Analyze(ctx context.Context, date time.Time) (*contracts.MarketSnapshot, error) {
	a.logger.WithField("date", date.Format("2006-01-02")).Info("Market analysis started")

	kospiBars, err := a.indexBars(ctx, contracts.IndexKOSPI, date)
	if err != nil {
		return nil, err
	}
	kosdaqBars, err := a.indexBars(ctx, contracts.IndexKOSDAQ, date)
	if err != nil {
		return nil, err
	}
	kospi := quoteOf(kospiBars)
	kosdaq := quoteOf(kosdaqBars)

	flows, err := a.source.GetMarketFlows(ctx, date)
	if err != nil {
		return nil, contracts.DataUnavailable("market.flows", err)
	}
	if flows == nil {
		a.logger.Warn("No investor flow data, using zero flows")
		flows = &contracts.MarketFlows{Date: date}
	}

	sectors, err := a.source.GetSectorPerformance(ctx, date)
	if err != nil {
		return nil, contracts.DataUnavailable("market.sectors", err)
	}

	breadth, err := a.source.GetBreadth(ctx, date)
	if err != nil {
		return nil, contracts.DataUnavailable("market.breadth", err)
	}

	trend := ClassifyTrend(kospi.change)
	adRatio := impliedAdvanceDecline(trend)
	snap := &contracts.MarketSnapshot{
		Date:              date,
		KOSPIClose:        kospi.close,
		KOSPIChangePct:    kospi.change,
		KOSDAQClose:       kosdaq.close,
		KOSDAQChangePct:   kosdaq.change,
		KOSPITrend:        trend,
		ForeignNet:        flows.Foreign,
		InstitutionNet:    flows.Institution,
		RetailNet:         flows.Retail,
		SectorPerformance: sectors,
		TopSectors:        TopSectors(sectors, a.cfg.TopSectors),
	}
	if breadth != nil {
		snap.AdvancingCount = breadth.Advancing
		snap.DecliningCount = breadth.Declining
		if r, ok := breadth.Ratio(); ok {
			adRatio = r
		}
	}
	snap.AdvanceDeclineRatio = adRatio

	snap.MomentumBreakdown = Momentum(kospi.change, *flows, sectors, adRatio)
	snap.MomentumScore = NormalizeMomentum(snap.MomentumBreakdown.Raw)

	tech := indexTechnicals(contracts.Closes(kospiBars))
	snap.IndexRSI = tech.rsi
	snap.MACDDirection = tech.macdDirection

	volRatio, volOK := indicators.VolumeRatio(kospiBars, indicators.VolumePeriod)
	snap.VolumeRatio = volRatio
	snap.VolumeAdjustment = VolumeAdjustment(volRatio, volOK)

	judgeSentiment(snap, tech.score)

	snap.Trend7d = a.trend7d(ctx, kospiBars, date)
	snap.TrendAnalysis = AnalyzeTrendPattern(snap.Trend7d)

	a.logger.WithFields(map[string]interface{}{
		"kospi":       kospi.close,
		"trend":       trend,
		"sentiment":   snap.Sentiment,
		"score":       snap.SentimentScore,
		"momentum":    snap.MomentumScore,
		"convergence": snap.SignalConvergence,
	}).Info("Market analysis completed")

	return snap, nil
}

func (a *Analyzer) indexBars(ctx context.Context, index string, date time.Time) ([]contracts.Bar, error) {
	n := a.cfg.IndexHistoryBars
	if n < 2 {
		n = 2
	}
	bars, err := a.source.GetIndexBars(ctx, index, date, n)
	if err != nil {
		return nil, contracts.DataUnavailable("market.index."+index, err)
	}
	if len(bars) == 0 {
		return nil, contracts.DataUnavailable("market.index."+index,
			fmt.Errorf("no %s bars on or before %s", index, date.Format("2006-01-02")))
	}
	return bars, nil
}

// quoteOf returns the last close and its % change versus the previous close
func quoteOf(bars []contracts.Bar) indexQuote {
	last := bars[len(bars)-1]
	q := indexQuote{close: last.Close}
	if len(bars) > 1 {
		if prev := bars[len(bars)-2].Close; prev != 0 {
			q.change = (last.Close - prev) / prev * 100
		}
	}
	return q
}

// ClassifyTrend maps an index % change to a trend
func ClassifyTrend(changePct float64) contracts.Trend {
	switch {
	case changePct > 0.5:
		return contracts.TrendUp
	case changePct < -0.5:
		return contracts.TrendDown
	default:
		return contracts.TrendRange
	}
}

// impliedAdvanceDecline is the breadth assumed when no breadth data exists
func impliedAdvanceDecline(t contracts.Trend) float64 {
	switch t {
	case contracts.TrendUp:
		return 0.65
	case contracts.TrendDown:
		return 0.35
	default:
		return 0.50
	}
}

// TopSectors returns the n best sectors, ties broken by name
func TopSectors(perf map[string]float64, n int) []string {
	names := make([]string, 0, len(perf))
	for name := range perf {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if perf[names[i]] != perf[names[j]] {
			return perf[names[i]] > perf[names[j]]
		}
		return names[i] < names[j]
	})
	if n >= 0 && len(names) > n {
		names = names[:n]
	}
	return names
}
