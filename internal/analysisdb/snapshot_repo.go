package analysisdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// SaveMarketSnapshot inserts the phase 2 snapshot and sets the phase flag
func (s *Store) SaveMarketSnapshot(ctx context.Context, run *contracts.AnalysisRun, snap *contracts.MarketSnapshot) error {
	return s.inPhase(ctx, run, contracts.PhaseMarketAnalysis, 0, func(tx pgx.Tx) error {
		query := `
			INSERT INTO analysis.market_snapshots (
				analysis_run_id, snapshot_date,
				kospi_close, kospi_change_pct, kosdaq_close, kosdaq_change_pct, kospi_trend,
				foreign_net, institution_net, retail_net,
				advancing_count, declining_count, advance_decline_ratio,
				momentum_score, momentum_breakdown,
				market_sentiment, sentiment_score, sentiment_signals,
				volume_ratio, signal_convergence, confidence_level, index_rsi, macd_direction,
				sector_performance, top_sectors, trend_7d, trend_analysis
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
			)
			RETURNING id
		`
		err := tx.QueryRow(ctx, query,
			run.ID, snap.Date,
			snap.KOSPIClose, snap.KOSPIChangePct, snap.KOSDAQClose, snap.KOSDAQChangePct, string(snap.KOSPITrend),
			snap.ForeignNet, snap.InstitutionNet, snap.RetailNet,
			snap.AdvancingCount, snap.DecliningCount, snap.AdvanceDeclineRatio,
			snap.MomentumScore, snap.MomentumBreakdown,
			string(snap.Sentiment), snap.SentimentScore, snap.Signals,
			snap.VolumeRatio, snap.SignalConvergence, snap.ConfidenceLevel, snap.IndexRSI, snap.MACDDirection,
			snap.SectorPerformance, snap.TopSectors, snap.Trend7d, snap.TrendAnalysis,
		).Scan(&snap.ID)
		if err != nil {
			return fmt.Errorf("insert market snapshot: %w", err)
		}
		snap.AnalysisRunID = run.ID
		return nil
	})
}

// GetMarketSnapshot returns the snapshot of a run
func (s *Store) GetMarketSnapshot(ctx context.Context, runID int64) (*contracts.MarketSnapshot, error) {
	query := `
		SELECT id, analysis_run_id, snapshot_date,
			kospi_close, kospi_change_pct, kosdaq_close, kosdaq_change_pct, kospi_trend,
			foreign_net, institution_net, retail_net,
			advancing_count, declining_count, advance_decline_ratio,
			momentum_score, momentum_breakdown,
			market_sentiment, sentiment_score, sentiment_signals,
			volume_ratio, signal_convergence, confidence_level, index_rsi, macd_direction,
			sector_performance, top_sectors, trend_7d, trend_analysis
		FROM analysis.market_snapshots
		WHERE analysis_run_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var snap contracts.MarketSnapshot
	var trend, sentiment string
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&snap.ID, &snap.AnalysisRunID, &snap.Date,
		&snap.KOSPIClose, &snap.KOSPIChangePct, &snap.KOSDAQClose, &snap.KOSDAQChangePct, &trend,
		&snap.ForeignNet, &snap.InstitutionNet, &snap.RetailNet,
		&snap.AdvancingCount, &snap.DecliningCount, &snap.AdvanceDeclineRatio,
		&snap.MomentumScore, &snap.MomentumBreakdown,
		&sentiment, &snap.SentimentScore, &snap.Signals,
		&snap.VolumeRatio, &snap.SignalConvergence, &snap.ConfidenceLevel, &snap.IndexRSI, &snap.MACDDirection,
		&snap.SectorPerformance, &snap.TopSectors, &snap.Trend7d, &snap.TrendAnalysis,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market snapshot for run %d: %w", runID, err)
	}
	snap.KOSPITrend = contracts.Trend(trend)
	snap.Sentiment = contracts.Sentiment(sentiment)
	return &snap, nil
}
