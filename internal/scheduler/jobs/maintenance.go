package jobs

import (
	"context"
	"time"

	"github.com/wonny/autoquant/backend/pkg/logger"
)

// StaleRunReconciler marks abandoned RUNNING runs as FAILED
type StaleRunReconciler interface {
	ReconcileStaleRuns(ctx context.Context, olderThan time.Duration) (int, error)
}

// StaleRunJob sweeps stale runs between daily analyses
type StaleRunJob struct {
	reconciler StaleRunReconciler
	olderThan  time.Duration
	logger     *logger.Logger
}

// NewStaleRunJob creates a new stale run sweep
func NewStaleRunJob(reconciler StaleRunReconciler, olderThan time.Duration, log *logger.Logger) *StaleRunJob {
	return &StaleRunJob{
		reconciler: reconciler,
		olderThan:  olderThan,
		logger:     log,
	}
}

// Name returns the job name
func (j *StaleRunJob) Name() string {
	return "stale_run_sweep"
}

// Schedule returns the cron schedule (hourly)
func (j *StaleRunJob) Schedule() string {
	return "0 0 * * * *"
}

// Run executes the sweep
func (j *StaleRunJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled stale run sweep")

	n, err := j.reconciler.ReconcileStaleRuns(ctx, j.olderThan)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.WithField("reconciled", n).Info("Stale run sweep completed")
	}
	return nil
}
