// Package analysisdb persists analysis runs and their phase outputs
// (schema "analysis"). Each phase writes its rows and its completion flag in
// one transaction, so a failed phase never leaves partial rows behind while
// earlier phases stay queryable.
package analysisdb

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/pkg/database"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// DB is satisfied by *pgxpool.Pool and pgx.Tx
type DB interface {
	database.Beginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store implements contracts.AnalysisStore plus the dashboard reads
// ⭐ SSOT: 분석 결과 저장/조회는 여기서만
type Store struct {
	db     DB
	logger *logger.Logger
}

var _ contracts.AnalysisStore = (*Store)(nil)

// NewStore creates a Store
func NewStore(db DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// Migrate applies the embedded schema. Safe to run repeatedly.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply analysis schema: %w", err)
	}
	return nil
}

// phaseColumn maps a phase to its completion flag column
func phaseColumn(p contracts.Phase) string {
	return fmt.Sprintf("phase%d_completed", p.Index()+1)
}

// phaseCounter maps a phase to the run counter it fills
var phaseCounter = map[contracts.Phase]string{
	contracts.PhaseDataCollection:     "total_stocks_analyzed",
	contracts.PhaseAIScreening:        "ai_candidates_count",
	contracts.PhaseTechnicalScreening: "technical_selections_count",
	contracts.PhasePriceCalculation:   "final_signals_count",
}

// checkpoint sets the phase flag (and its counter, if any) inside tx.
// A run that is no longer RUNNING rolls the whole phase back.
func checkpoint(ctx context.Context, tx pgx.Tx, runID int64, p contracts.Phase, count int) error {
	set := phaseColumn(p) + " = TRUE"
	args := []any{runID}
	if col, ok := phaseCounter[p]; ok {
		set += ", " + col + " = $2"
		args = append(args, count)
	}

	tag, err := tx.Exec(ctx, `UPDATE analysis.analysis_runs SET `+set+` WHERE id = $1 AND status = 'RUNNING'`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d: %w", runID, contracts.ErrRunFinalized)
	}
	return nil
}

// inPhase runs fn and the phase checkpoint in one transaction.
// The in-memory run is only updated after the commit succeeds.
func (s *Store) inPhase(ctx context.Context, run *contracts.AnalysisRun, p contracts.Phase, count int, fn func(tx pgx.Tx) error) error {
	err := database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if fn != nil {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return checkpoint(ctx, tx, run.ID, p, count)
	})
	if err != nil {
		return contracts.PersistenceError("analysisdb."+string(p), err)
	}

	run.MarkPhase(p)
	applyCounter(run, p, count)

	s.logger.WithFields(map[string]interface{}{
		"run_id": run.ID,
		"phase":  string(p),
		"count":  count,
	}).Debug("Phase checkpoint committed")
	return nil
}

func applyCounter(run *contracts.AnalysisRun, p contracts.Phase, count int) {
	switch p {
	case contracts.PhaseDataCollection:
		run.TotalStocksAnalyzed = count
	case contracts.PhaseAIScreening:
		run.AICandidatesCount = count
	case contracts.PhaseTechnicalScreening:
		run.TechnicalSelectionsCount = count
	case contracts.PhasePriceCalculation:
		run.FinalSignalsCount = count
	}
}
