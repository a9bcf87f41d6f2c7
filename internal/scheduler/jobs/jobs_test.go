package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/internal/brain"
	"github.com/wonny/autoquant/backend/internal/scheduler"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

type fakeRunner struct {
	result *brain.RunResult
	calls  int
}

func (f *fakeRunner) RunDailyAnalysis(context.Context, brain.RunConfig) *brain.RunResult {
	f.calls++
	return f.result
}

type fakeReconciler struct {
	n         int
	err       error
	olderThan time.Duration
}

func (f *fakeReconciler) ReconcileStaleRuns(_ context.Context, d time.Duration) (int, error) {
	f.olderThan = d
	return f.n, f.err
}

func TestDailyAnalysisJob_Success(t *testing.T) {
	runner := &fakeRunner{result: &brain.RunResult{Success: true, RunID: 3, Counts: brain.RunCounts{FinalSignals: 4}}}
	job := NewDailyAnalysisJob(runner, "", logger.Nop())

	assert.Equal(t, "daily_analysis", job.Name())
	assert.Equal(t, DefaultAnalysisSchedule, job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(3), job.LastResult().RunID)
}

func TestDailyAnalysisJob_FailureIsNotRetried(t *testing.T) {
	runner := &fakeRunner{result: &brain.RunResult{RunID: 7, ErrorPhase: "phase3_ai_screening", Message: "provider down"}}
	job := NewDailyAnalysisJob(runner, "0 0 19 * * 1-5", logger.Nop())

	s := scheduler.New(logger.Nop(), scheduler.WithRetries(3, time.Minute),
		scheduler.WithSleep(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow(context.Background(), job.Name())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, res.Error, "analysis run 7 failed in phase3_ai_screening: provider down")
}

func TestStaleRunJob(t *testing.T) {
	rec := &fakeReconciler{n: 2}
	job := NewStaleRunJob(rec, 2*time.Hour, logger.Nop())

	assert.Equal(t, "stale_run_sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2*time.Hour, rec.olderThan)

	rec.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}
