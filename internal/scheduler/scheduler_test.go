package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	failN    int // fail the first failN calls
	calls    int
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(context.Context) error {
	j.calls++
	if j.calls <= j.failN {
		return errors.New("transient failure")
	}
	return nil
}

// onceJob opts out of retries
type onceJob struct{ countingJob }

func (j *onceJob) MaxRetries() int { return 0 }

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestScheduler(rec *sleepRecorder) *Scheduler {
	return New(logger.Nop(), WithRetries(3, time.Minute), WithSleep(rec.sleep), WithLocation(time.UTC))
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(&sleepRecorder{})

	require.NoError(t, s.AddJob(&countingJob{name: "b", schedule: "0 0 * * * *"}))
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "@hourly"}))

	err := s.AddJob(&countingJob{name: "a", schedule: "@hourly"})
	assert.ErrorContains(t, err, "already exists")

	err = s.AddJob(&countingJob{name: "bad", schedule: "not a cron"})
	assert.ErrorContains(t, err, "failed to schedule")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunNow_RetriesUntilSuccess(t *testing.T) {
	rec := &sleepRecorder{}
	s := newTestScheduler(rec)
	job := &countingJob{name: "flaky", schedule: "@daily", failN: 2}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, rec.delays)
}

func TestRunNow_ExhaustsRetries(t *testing.T) {
	rec := &sleepRecorder{}
	s := newTestScheduler(rec)
	job := &countingJob{name: "broken", schedule: "@daily", failN: 100}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, job.calls, "one run plus three retries")
	assert.Len(t, rec.delays, 3)
	assert.Equal(t, "transient failure", res.Error)
}

func TestRunNow_JobWithoutRetries(t *testing.T) {
	rec := &sleepRecorder{}
	s := newTestScheduler(rec)
	job := &onceJob{countingJob{name: "once", schedule: "@daily", failN: 1}}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow(context.Background(), "once")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, job.calls)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, rec.delays)

	stats := s.GetJobStats()["once"]
	assert.Equal(t, 0, stats.MaxRetries)
	assert.Equal(t, 1, stats.FailureCount)
	require.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestRunNow_CancelledDuringBackoff(t *testing.T) {
	s := New(logger.Nop(), WithRetries(3, time.Minute), WithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))
	job := &countingJob{name: "flaky", schedule: "@daily", failN: 5}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, job.calls)
	assert.Contains(t, res.Error, "retry aborted")
}

func TestRunNow_UnknownJob(t *testing.T) {
	s := newTestScheduler(&sleepRecorder{})
	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
	assert.Error(t, s.RunJob("missing"))
}

func TestJobHistory(t *testing.T) {
	s := newTestScheduler(&sleepRecorder{})
	job := &onceJob{countingJob{name: "j", schedule: "@daily", failN: 1}}
	require.NoError(t, s.AddJob(job))

	for i := 0; i < 3; i++ {
		_, err := s.RunNow(context.Background(), "j")
		require.NoError(t, err)
	}

	h, err := s.GetJobHistory("j")
	require.NoError(t, err)
	require.Len(t, h.Results, 3)
	assert.False(t, h.Results[0].Success)
	assert.True(t, h.Results[2].Success)
	assert.InDelta(t, 2.0/3.0, h.GetSuccessRate(), 1e-9)

	// the copy is detached from the scheduler's history
	h.Results[0].Success = true
	again, _ := s.GetJobHistory("j")
	assert.False(t, again.Results[0].Success)
}

func TestJobHistoryKeepsLast100(t *testing.T) {
	var h JobHistory
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{Attempts: i})
	}
	require.Len(t, h.Results, 100)
	assert.Equal(t, 50, h.Results[0].Attempts)

	latest := h.GetLatestResults(2)
	assert.Equal(t, []int{148, 149}, []int{latest[0].Attempts, latest[1].Attempts})
	assert.Empty(t, (&JobHistory{}).GetLatestResults(5))
}

func TestNextRun(t *testing.T) {
	s := newTestScheduler(&sleepRecorder{})
	require.NoError(t, s.AddJob(&countingJob{name: "daily_analysis", schedule: "0 30 18 * * 1-5"}))

	// Friday 19:00 -> Monday 18:30
	from := time.Date(2024, 10, 18, 19, 0, 0, 0, time.UTC)
	next, err := s.NextRun("daily_analysis", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 21, 18, 30, 0, 0, time.UTC), next)

	// Friday 09:00 -> same day
	next, err = s.NextRun("daily_analysis", from.Add(-10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 18, 18, 30, 0, 0, time.UTC), next)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&sleepRecorder{})
	require.NoError(t, s.AddJob(&countingJob{name: "j", schedule: "@daily"}))
	s.Start()
	s.Stop()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
}

func TestKVFields(t *testing.T) {
	got := kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 1, "next": "soon"}, got)
}
