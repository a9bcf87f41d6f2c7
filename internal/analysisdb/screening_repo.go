package analysisdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// SaveAIScreening inserts the phase 3 header and its candidates, then sets the phase flag
func (s *Store) SaveAIScreening(ctx context.Context, run *contracts.AnalysisRun, result *contracts.AIScreeningResult, candidates []contracts.AICandidate) error {
	return s.inPhase(ctx, run, contracts.PhaseAIScreening, len(candidates), func(tx pgx.Tx) error {
		header := `
			INSERT INTO analysis.ai_screening_results (
				analysis_run_id, provider, model, prompt_tokens, completion_tokens, api_cost, api_calls,
				input_count, candidate_count, dropped_count, duration_seconds,
				market_sentiment, sentiment_confidence, from_cache
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`
		err := tx.QueryRow(ctx, header,
			run.ID, result.Provider, result.Model, result.PromptTokens, result.CompletionTokens, result.APICost, result.APICalls,
			result.InputCount, result.CandidateCount, result.DroppedCount, result.Duration.Seconds(),
			string(result.Sentiment), result.SentimentConfidence, result.FromCache,
		).Scan(&result.ID)
		if err != nil {
			return fmt.Errorf("insert ai screening result: %w", err)
		}
		result.AnalysisRunID = run.ID

		row := `
			INSERT INTO analysis.ai_candidates (
				analysis_run_id, ai_screening_id, stock_code, stock_name, sector,
				current_price, ai_score, rank, reasoning, signals
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`
		for i := range candidates {
			c := &candidates[i]
			if err := tx.QueryRow(ctx, row,
				run.ID, result.ID, c.Code, c.Name, c.Sector,
				c.CurrentPrice, c.AIScore, c.Rank, c.Reasoning, c.Signals,
			).Scan(&c.ID); err != nil {
				return fmt.Errorf("insert ai candidate %s: %w", c.Code, err)
			}
		}
		return nil
	})
}

// SaveTechnicalScreening inserts the phase 4 header and its selections, then sets the phase flag
func (s *Store) SaveTechnicalScreening(ctx context.Context, run *contracts.AnalysisRun, result *contracts.TechnicalScreeningResult, selections []contracts.TechnicalSelection) error {
	return s.inPhase(ctx, run, contracts.PhaseTechnicalScreening, len(selections), func(tx pgx.Tx) error {
		header := `
			INSERT INTO analysis.technical_screening_results (
				analysis_run_id, input_count, valid_count, excluded_count, final_count, exec_time_seconds
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`
		err := tx.QueryRow(ctx, header,
			run.ID, result.InputCount, result.ValidCount, result.ExcludedCount, result.FinalCount, result.ExecTime.Seconds(),
		).Scan(&result.ID)
		if err != nil {
			return fmt.Errorf("insert technical screening result: %w", err)
		}
		result.AnalysisRunID = run.ID

		row := `
			INSERT INTO analysis.technical_selections (
				analysis_run_id, technical_screening_id, stock_code, stock_name, rank,
				sma_score, rsi_score, macd_score, bb_score, volume_score,
				technical_score, ai_score, final_score,
				close_price, sma_20, sma_50, sma_200, rsi_14, macd, macd_signal, macd_histogram,
				bb_position, volume_ratio
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
			)
			RETURNING id
		`
		for i := range selections {
			sel := &selections[i]
			ind := sel.Indicators
			if err := tx.QueryRow(ctx, row,
				run.ID, result.ID, sel.Code, sel.Name, sel.Rank,
				sel.SMAScore, sel.RSIScore, sel.MACDScore, sel.BBScore, sel.VolumeScore,
				sel.TechnicalScore, sel.AIScore, sel.FinalScore,
				ind.Close, ind.SMA20, ind.SMA50, ind.SMA200, ind.RSI, ind.MACD, ind.MACDSignal, ind.MACDHist,
				ind.BBPosition, ind.VolRatio,
			).Scan(&sel.ID); err != nil {
				return fmt.Errorf("insert technical selection %s: %w", sel.Code, err)
			}
		}
		return nil
	})
}

// GetAIScreeningResult returns the phase 3 header of a run
func (s *Store) GetAIScreeningResult(ctx context.Context, runID int64) (*contracts.AIScreeningResult, error) {
	query := `
		SELECT id, analysis_run_id, provider, COALESCE(model, ''), prompt_tokens, completion_tokens,
			api_cost, api_calls, input_count, candidate_count, dropped_count,
			COALESCE(duration_seconds, 0), COALESCE(market_sentiment, ''), COALESCE(sentiment_confidence, 0), from_cache
		FROM analysis.ai_screening_results
		WHERE analysis_run_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var r contracts.AIScreeningResult
	var seconds float64
	var sentiment string
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&r.ID, &r.AnalysisRunID, &r.Provider, &r.Model, &r.PromptTokens, &r.CompletionTokens,
		&r.APICost, &r.APICalls, &r.InputCount, &r.CandidateCount, &r.DroppedCount,
		&seconds, &sentiment, &r.SentimentConfidence, &r.FromCache,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ai screening result for run %d: %w", runID, err)
	}
	r.Duration = fromSeconds(seconds)
	r.Sentiment = contracts.Sentiment(sentiment)
	return &r, nil
}

// GetAICandidates returns a run's candidates by rank
func (s *Store) GetAICandidates(ctx context.Context, runID int64) ([]contracts.AICandidate, error) {
	query := `
		SELECT id, stock_code, COALESCE(stock_name, ''), COALESCE(sector, ''), COALESCE(current_price, 0),
			ai_score, rank, COALESCE(reasoning, ''), signals
		FROM analysis.ai_candidates
		WHERE analysis_run_id = $1
		ORDER BY rank ASC
	`
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query ai candidates for run %d: %w", runID, err)
	}
	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.AICandidate, error) {
		var c contracts.AICandidate
		err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Sector, &c.CurrentPrice, &c.AIScore, &c.Rank, &c.Reasoning, &c.Signals)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ai candidates for run %d: %w", runID, err)
	}
	return candidates, nil
}

// GetTechnicalScreeningResult returns the phase 4 header of a run
func (s *Store) GetTechnicalScreeningResult(ctx context.Context, runID int64) (*contracts.TechnicalScreeningResult, error) {
	query := `
		SELECT id, analysis_run_id, input_count, valid_count, excluded_count, final_count, COALESCE(exec_time_seconds, 0)
		FROM analysis.technical_screening_results
		WHERE analysis_run_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var r contracts.TechnicalScreeningResult
	var seconds float64
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&r.ID, &r.AnalysisRunID, &r.InputCount, &r.ValidCount, &r.ExcludedCount, &r.FinalCount, &seconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get technical screening result for run %d: %w", runID, err)
	}
	r.ExecTime = fromSeconds(seconds)
	return &r, nil
}

// GetTechnicalSelections returns a run's selections by rank
func (s *Store) GetTechnicalSelections(ctx context.Context, runID int64) ([]contracts.TechnicalSelection, error) {
	query := `
		SELECT id, stock_code, COALESCE(stock_name, ''), rank,
			sma_score, rsi_score, macd_score, bb_score, volume_score,
			technical_score, ai_score, final_score,
			COALESCE(close_price, 0), COALESCE(sma_20, 0), sma_50, sma_200,
			COALESCE(rsi_14, 0), COALESCE(macd, 0), COALESCE(macd_signal, 0), COALESCE(macd_histogram, 0),
			COALESCE(bb_position, 0), COALESCE(volume_ratio, 0)
		FROM analysis.technical_selections
		WHERE analysis_run_id = $1
		ORDER BY rank ASC
	`
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query technical selections for run %d: %w", runID, err)
	}
	selections, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.TechnicalSelection, error) {
		var sel contracts.TechnicalSelection
		ind := &sel.Indicators
		err := row.Scan(
			&sel.ID, &sel.Code, &sel.Name, &sel.Rank,
			&sel.SMAScore, &sel.RSIScore, &sel.MACDScore, &sel.BBScore, &sel.VolumeScore,
			&sel.TechnicalScore, &sel.AIScore, &sel.FinalScore,
			&ind.Close, &ind.SMA20, &ind.SMA50, &ind.SMA200,
			&ind.RSI, &ind.MACD, &ind.MACDSignal, &ind.MACDHist,
			&ind.BBPosition, &ind.VolRatio,
		)
		return sel, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan technical selections for run %d: %w", runID, err)
	}
	return selections, nil
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
