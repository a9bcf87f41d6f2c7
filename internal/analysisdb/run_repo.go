package analysisdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// ErrNotFound is returned by the single-row reads
var ErrNotFound = errors.New("not found")

const runColumns = `
	id, trace_id, run_date, target_trade_date, status,
	phase1_completed, phase2_completed, phase3_completed, phase4_completed, phase5_completed,
	error_phase, error_message,
	total_stocks_analyzed, ai_candidates_count, technical_selections_count, final_signals_count,
	config_hash, start_time, end_time, duration_seconds
`

func scanRun(row pgx.Row) (*contracts.AnalysisRun, error) {
	var r contracts.AnalysisRun
	var status string
	var errorPhase, errorMessage, configHash *string
	var duration *float64

	err := row.Scan(
		&r.ID, &r.TraceID, &r.RunDate, &r.TargetTradeDate, &status,
		&r.PhaseCompleted[0], &r.PhaseCompleted[1], &r.PhaseCompleted[2], &r.PhaseCompleted[3], &r.PhaseCompleted[4],
		&errorPhase, &errorMessage,
		&r.TotalStocksAnalyzed, &r.AICandidatesCount, &r.TechnicalSelectionsCount, &r.FinalSignalsCount,
		&configHash, &r.StartTime, &r.EndTime, &duration,
	)
	if err != nil {
		return nil, err
	}

	r.Status = contracts.RunStatus(status)
	r.ErrorPhase = deref(errorPhase)
	r.ErrorMessage = deref(errorMessage)
	r.ConfigHash = deref(configHash)
	if duration != nil {
		r.DurationSeconds = *duration
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateRun inserts the run in RUNNING state and commits immediately
func (s *Store) CreateRun(ctx context.Context, run *contracts.AnalysisRun) error {
	if run.Status == "" {
		run.Status = contracts.RunStatusRunning
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now()
	}

	query := `
		INSERT INTO analysis.analysis_runs (trace_id, run_date, target_trade_date, status, config_hash, start_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRow(ctx, query,
		run.TraceID, run.RunDate, run.TargetTradeDate, string(run.Status), nullable(run.ConfigHash), run.StartTime,
	).Scan(&run.ID)
	if err != nil {
		return contracts.PersistenceError("analysisdb.CreateRun", err)
	}
	return nil
}

// CompletePhase1 records the instrument count and the phase 1 flag
func (s *Store) CompletePhase1(ctx context.Context, run *contracts.AnalysisRun, instrumentCount int) error {
	return s.inPhase(ctx, run, contracts.PhaseDataCollection, instrumentCount, nil)
}

// FinishRun writes the terminal status, error fields and timing.
// Only a RUNNING row is updated; a run that another writer already finished
// yields contracts.ErrRunFinalized and keeps its status.
func (s *Store) FinishRun(ctx context.Context, run *contracts.AnalysisRun) error {
	if !run.Status.IsTerminal() {
		return contracts.PersistenceError("analysisdb.FinishRun",
			fmt.Errorf("run %d: status %q is not terminal", run.ID, run.Status))
	}

	query := `
		UPDATE analysis.analysis_runs
		SET status = $2, error_phase = $3, error_message = $4, end_time = $5, duration_seconds = $6
		WHERE id = $1 AND status = 'RUNNING'
	`
	tag, err := s.db.Exec(ctx, query,
		run.ID, string(run.Status), nullable(run.ErrorPhase), nullable(run.ErrorMessage), run.EndTime, run.DurationSeconds,
	)
	if err != nil {
		return contracts.PersistenceError("analysisdb.FinishRun", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.PersistenceError("analysisdb.FinishRun", fmt.Errorf("run %d: %w", run.ID, contracts.ErrRunFinalized))
	}
	return nil
}

// CountRunsForDate counts runs of any status for the run date
func (s *Store) CountRunsForDate(ctx context.Context, date time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM analysis.analysis_runs WHERE run_date = $1`, date).Scan(&n)
	if err != nil {
		return 0, contracts.PersistenceError("analysisdb.CountRunsForDate", err)
	}
	return n, nil
}

// ListStaleRuns returns RUNNING runs started before the cutoff, oldest first
func (s *Store) ListStaleRuns(ctx context.Context, startedBefore time.Time) ([]contracts.AnalysisRun, error) {
	query := `SELECT ` + runColumns + `
		FROM analysis.analysis_runs
		WHERE status = 'RUNNING' AND start_time < $1
		ORDER BY start_time ASC
	`
	runs, err := s.queryRuns(ctx, query, startedBefore)
	if err != nil {
		return nil, contracts.PersistenceError("analysisdb.ListStaleRuns", err)
	}
	return runs, nil
}

// GetRun returns one run by id
func (s *Store) GetRun(ctx context.Context, id int64) (*contracts.AnalysisRun, error) {
	run, err := scanRun(s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM analysis.analysis_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]contracts.AnalysisRun, error) {
	query := `SELECT ` + runColumns + `
		FROM analysis.analysis_runs
		ORDER BY start_time DESC, id DESC
		LIMIT $1
	`
	runs, err := s.queryRuns(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LatestCompletedRun returns the newest COMPLETED run
func (s *Store) LatestCompletedRun(ctx context.Context) (*contracts.AnalysisRun, error) {
	query := `SELECT ` + runColumns + `
		FROM analysis.analysis_runs
		WHERE status = 'COMPLETED'
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`
	run, err := scanRun(s.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed run: %w", err)
	}
	return run, nil
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]contracts.AnalysisRun, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []contracts.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
