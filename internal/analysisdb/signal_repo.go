package analysisdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

const signalColumns = `
	id, analysis_run_id, tech_selection_id, stock_code, COALESCE(stock_name, ''),
	current_price, buy_price, target_price, stop_loss_price,
	COALESCE(predicted_return, 0), COALESCE(risk_reward_ratio, 0), COALESCE(ai_confidence, 0),
	COALESCE(support, 0), COALESCE(resistance, 0), COALESCE(pivot, 0), COALESCE(atr, 0),
	calculation_details, status, target_trade_date, created_at
`

// SaveSignals inserts the phase 5 signals and sets the phase flag.
// Signals inherit the run id and target trade date.
// ⭐ SSOT: Signal 데이터 저장은 여기서만
func (s *Store) SaveSignals(ctx context.Context, run *contracts.AnalysisRun, signals []contracts.TradingSignal) error {
	return s.inPhase(ctx, run, contracts.PhasePriceCalculation, len(signals), func(tx pgx.Tx) error {
		query := `
			INSERT INTO analysis.trading_signals (
				analysis_run_id, tech_selection_id, stock_code, stock_name,
				current_price, buy_price, target_price, stop_loss_price,
				predicted_return, risk_reward_ratio, ai_confidence,
				support, resistance, pivot, atr, calculation_details, status, target_trade_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING id, created_at
		`
		for i := range signals {
			sig := &signals[i]
			if sig.Status == "" {
				sig.Status = contracts.SignalPending
			}
			var selectionID *int64
			if sig.TechSelectionID != 0 {
				selectionID = &sig.TechSelectionID
			}

			if err := tx.QueryRow(ctx, query,
				run.ID, selectionID, sig.Code, sig.Name,
				sig.CurrentPrice, sig.BuyPrice, sig.TargetPrice, sig.StopLossPrice,
				sig.PredictedReturn, sig.RiskRewardRatio, sig.AIConfidence,
				sig.Support, sig.Resistance, sig.Pivot, sig.ATR, sig.CalculationDetails,
				string(sig.Status), run.TargetTradeDate,
			).Scan(&sig.ID, &sig.CreatedAt); err != nil {
				return fmt.Errorf("insert trading signal %s: %w", sig.Code, err)
			}
			sig.AnalysisRunID = run.ID
			sig.TargetTradeDate = run.TargetTradeDate
		}
		return nil
	})
}

// GetSignals returns a run's signals by risk/reward, best first
func (s *Store) GetSignals(ctx context.Context, runID int64) ([]contracts.TradingSignal, error) {
	query := `SELECT ` + signalColumns + `
		FROM analysis.trading_signals
		WHERE analysis_run_id = $1
		ORDER BY risk_reward_ratio DESC NULLS LAST, id ASC
	`
	signals, err := s.querySignals(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get signals for run %d: %w", runID, err)
	}
	return signals, nil
}

// GetLatestSignals returns pending signals, newest first
func (s *Store) GetLatestSignals(ctx context.Context, limit int) ([]contracts.TradingSignal, error) {
	query := `SELECT ` + signalColumns + `
		FROM analysis.trading_signals
		WHERE status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	signals, err := s.querySignals(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get latest signals: %w", err)
	}
	return signals, nil
}

func (s *Store) querySignals(ctx context.Context, query string, args ...any) ([]contracts.TradingSignal, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.TradingSignal, error) {
		var sig contracts.TradingSignal
		var selectionID *int64
		var status string
		err := row.Scan(
			&sig.ID, &sig.AnalysisRunID, &selectionID, &sig.Code, &sig.Name,
			&sig.CurrentPrice, &sig.BuyPrice, &sig.TargetPrice, &sig.StopLossPrice,
			&sig.PredictedReturn, &sig.RiskRewardRatio, &sig.AIConfidence,
			&sig.Support, &sig.Resistance, &sig.Pivot, &sig.ATR,
			&sig.CalculationDetails, &status, &sig.TargetTradeDate, &sig.CreatedAt,
		)
		if selectionID != nil {
			sig.TechSelectionID = *selectionID
		}
		sig.Status = contracts.SignalStatus(status)
		return sig, err
	})
}
