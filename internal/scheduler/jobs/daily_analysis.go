package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/autoquant/backend/internal/brain"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// DefaultAnalysisSchedule is 18:30 on weekdays, after the market-data load
const DefaultAnalysisSchedule = "0 30 18 * * 1-5"

// AnalysisRunner runs one daily analysis
type AnalysisRunner interface {
	RunDailyAnalysis(ctx context.Context, cfg brain.RunConfig) *brain.RunResult
}

// DailyAnalysisJob triggers the five-phase analysis once per weekday
type DailyAnalysisJob struct {
	runner   AnalysisRunner
	schedule string
	logger   *logger.Logger

	mu   sync.Mutex
	last *brain.RunResult
}

// NewDailyAnalysisJob creates the job; an empty schedule uses DefaultAnalysisSchedule
func NewDailyAnalysisJob(runner AnalysisRunner, schedule string, log *logger.Logger) *DailyAnalysisJob {
	if schedule == "" {
		schedule = DefaultAnalysisSchedule
	}
	return &DailyAnalysisJob{
		runner:   runner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *DailyAnalysisJob) Name() string {
	return "daily_analysis"
}

// Schedule returns the cron schedule
func (j *DailyAnalysisJob) Schedule() string {
	return j.schedule
}

// MaxRetries is 0: every invocation creates a new run
func (j *DailyAnalysisJob) MaxRetries() int {
	return 0
}

// LastResult returns the result of the most recent invocation
func (j *DailyAnalysisJob) LastResult() *brain.RunResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Run executes the analysis for today
func (j *DailyAnalysisJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled daily analysis")

	res := j.runner.RunDailyAnalysis(ctx, brain.RunConfig{})
	j.mu.Lock()
	j.last = res
	j.mu.Unlock()

	if !res.Success {
		return fmt.Errorf("analysis run %d failed in %s: %s", res.RunID, res.ErrorPhase, res.Message)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":  res.RunID,
		"signals": res.Counts.FinalSignals,
		"target":  res.TargetTradeDate.Format("2006-01-02"),
	}).Info("Scheduled daily analysis completed")
	return nil
}
