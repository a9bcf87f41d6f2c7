// Package brain runs the daily analysis: a five-phase state machine that
// checkpoints each phase's output before starting the next.
package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/metrics"
	"github.com/wonny/autoquant/backend/internal/technical"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// MarketAnalyzer is phase 2
type MarketAnalyzer interface {
	Analyze(ctx context.Context, date time.Time) (*contracts.MarketSnapshot, error)
}

// AIScreener is phase 3
type AIScreener interface {
	Screen(ctx context.Context, snap *contracts.MarketSnapshot, universe []contracts.Instrument) ([]contracts.AICandidate, *contracts.AIScreeningResult, error)
}

// TechnicalScreener is phase 4
type TechnicalScreener interface {
	Screen(ctx context.Context, asOf time.Time, candidates []contracts.AICandidate) (*technical.Result, error)
}

// PriceCalculator is phase 5
type PriceCalculator interface {
	PriceSelections(ctx context.Context, bars contracts.BarSource, asOf time.Time, selections []contracts.TechnicalSelection) ([]contracts.TradingSignal, []contracts.Exclusion, error)
}

// Deps are the orchestrator's collaborators
type Deps struct {
	Universe  contracts.UniverseSource
	Bars      contracts.BarSource
	Market    MarketAnalyzer
	AI        AIScreener
	Technical TechnicalScreener
	Pricing   PriceCalculator
	Store     contracts.AnalysisStore

	Metrics *metrics.Registry // optional
	Logger  *logger.Logger

	// ConfigHash is recorded on every run
	ConfigHash string
	// StaleRunAfter marks RUNNING rows older than this as FAILED before each run (0 disables)
	StaleRunAfter time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// Orchestrator coordinates the five analysis phases
// ⭐ SSOT: 분석 파이프라인 조율은 여기서만
type Orchestrator struct {
	deps   Deps
	logger *logger.Logger
	now    func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{deps: deps, logger: log, now: now}
}

// RunConfig holds the dates for one run. Zero values take the defaults.
type RunConfig struct {
	Date            time.Time // default: today
	TargetTradeDate time.Time // default: next business day after Date
}

// RunResult is the structured outcome of RunDailyAnalysis
type RunResult struct {
	Success         bool                      `json:"success"`
	RunID           int64                     `json:"run_id,omitempty"`
	TraceID         string                    `json:"trace_id"`
	RunDate         time.Time                 `json:"run_date"`
	TargetTradeDate time.Time                 `json:"target_trade_date"`
	Status          contracts.RunStatus       `json:"status"`
	ErrorPhase      string                    `json:"error_phase,omitempty"`
	Message         string                    `json:"message,omitempty"`
	ErrorKind       contracts.ErrorKind       `json:"error_kind,omitempty"`
	Counts          RunCounts                 `json:"counts"`
	Signals         []contracts.TradingSignal `json:"signals"`
	Excluded        []contracts.Exclusion     `json:"excluded,omitempty"`
	Duration        time.Duration             `json:"duration"`
}

// RunCounts mirrors the run counters
type RunCounts struct {
	TotalStocksAnalyzed int `json:"total_stocks_analyzed"`
	AICandidates        int `json:"ai_candidates"`
	TechnicalSelections int `json:"technical_selections"`
	FinalSignals        int `json:"final_signals"`
}

// runState carries each phase's output into the next
type runState struct {
	snapshot   *contracts.MarketSnapshot
	candidates []contracts.AICandidate
	selections []contracts.TechnicalSelection
	signals    []contracts.TradingSignal
	excluded   []contracts.Exclusion
}

// RunDailyAnalysis executes phases 1..5 for one date.
// It never returns an error: failures are recorded on the run and reported in RunResult.
func (o *Orchestrator) RunDailyAnalysis(ctx context.Context, cfg RunConfig) *RunResult {
	start := o.now()
	date := cfg.Date
	if date.IsZero() {
		date = start
	}
	date = DateOnly(date)
	target := cfg.TargetTradeDate
	if target.IsZero() {
		target = NextBusinessDay(date)
	}
	target = DateOnly(target)

	traceID := uuid.NewString()
	result := &RunResult{
		TraceID:         traceID,
		RunDate:         date,
		TargetTradeDate: target,
		Status:          contracts.RunStatusFailed,
	}

	if o.deps.StaleRunAfter > 0 {
		if n, err := o.ReconcileStaleRuns(ctx, o.deps.StaleRunAfter); err != nil {
			o.logger.WithError(err).Warn("Stale run reconciliation failed")
		} else if n > 0 {
			o.logger.WithField("reconciled", n).Warn("Marked stale runs as FAILED")
		}
	}

	if n, err := o.deps.Store.CountRunsForDate(ctx, date); err != nil {
		o.logger.WithError(err).Warn("Could not check existing runs for date")
	} else if n > 0 {
		o.logger.WithFields(map[string]interface{}{
			"date":     date.Format("2006-01-02"),
			"existing": n,
		}).Warn("Analysis already ran for this date, creating a new run")
	}

	run := &contracts.AnalysisRun{
		TraceID:         traceID,
		RunDate:         date,
		TargetTradeDate: target,
		Status:          contracts.RunStatusRunning,
		ConfigHash:      o.deps.ConfigHash,
		StartTime:       start,
	}
	if err := o.deps.Store.CreateRun(ctx, run); err != nil {
		o.logger.WithError(err).Error("Failed to create analysis run")
		o.deps.Metrics.RecordRun(string(contracts.RunStatusFailed))
		result.Message = err.Error()
		result.ErrorKind = contracts.KindOf(err)
		result.Duration = o.now().Sub(start)
		return result
	}
	result.RunID = run.ID

	log := o.logger.WithRun(run.ID, traceID)
	log.WithFields(map[string]interface{}{
		"date":              date.Format("2006-01-02"),
		"target_trade_date": target.Format("2006-01-02"),
		"config_hash":       o.deps.ConfigHash,
	}).Info("Starting daily analysis")

	state := &runState{}
	err := o.runPhases(ctx, run, state, log)
	if err == nil && !run.AllPhasesCompleted() {
		err = contracts.PersistenceError("brain.RunDailyAnalysis",
			fmt.Errorf("%s finished without a checkpoint", run.CurrentPhase()))
	}

	end := o.now()
	run.EndTime = &end
	run.DurationSeconds = end.Sub(start).Seconds()
	if err != nil {
		o.fail(ctx, run, err, log)
	} else {
		run.Status = contracts.RunStatusCompleted
		if ferr := o.deps.Store.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			// 모든 단계는 커밋됨, 종료 상태 기록만 실패: 마지막 단계로 귀속
			log.WithError(ferr).Error("Failed to mark run completed")
			run.Status = contracts.RunStatusFailed
			run.ErrorPhase = string(contracts.PhasePriceCalculation)
			run.ErrorMessage = ferr.Error()
			err = ferr
		}
	}
	o.deps.Metrics.RecordRun(string(run.Status))

	result.Success = run.Status == contracts.RunStatusCompleted
	result.Status = run.Status
	result.ErrorPhase = run.ErrorPhase
	result.Message = run.ErrorMessage
	if err != nil {
		result.ErrorKind = contracts.KindOf(err)
	}
	result.Counts = RunCounts{
		TotalStocksAnalyzed: run.TotalStocksAnalyzed,
		AICandidates:        run.AICandidatesCount,
		TechnicalSelections: run.TechnicalSelectionsCount,
		FinalSignals:        run.FinalSignalsCount,
	}
	result.Signals = state.signals
	result.Excluded = state.excluded
	result.Duration = end.Sub(start)

	fields := map[string]interface{}{
		"status":   string(run.Status),
		"signals":  run.FinalSignalsCount,
		"duration": result.Duration.Seconds(),
	}
	if result.Success {
		log.WithFields(fields).Info("Daily analysis completed")
	} else {
		fields["error_phase"] = run.ErrorPhase
		log.WithFields(fields).Error("Daily analysis failed")
	}
	return result
}

func (o *Orchestrator) runPhases(ctx context.Context, run *contracts.AnalysisRun, st *runState, log *logger.Logger) error {
	phases := []struct {
		phase contracts.Phase
		fn    func(context.Context, *contracts.AnalysisRun, *runState, *logger.Logger) error
	}{
		{contracts.PhaseDataCollection, o.phase1},
		{contracts.PhaseMarketAnalysis, o.phase2},
		{contracts.PhaseAIScreening, o.phase3},
		{contracts.PhaseTechnicalScreening, o.phase4},
		{contracts.PhasePriceCalculation, o.phase5},
	}
	for _, p := range phases {
		if err := o.runPhase(ctx, run, p.phase, st, log, p.fn); err != nil {
			return err
		}
	}
	return nil
}

// runPhase times one phase and turns a panic into an error
func (o *Orchestrator) runPhase(
	ctx context.Context,
	run *contracts.AnalysisRun,
	p contracts.Phase,
	st *runState,
	log *logger.Logger,
	fn func(context.Context, *contracts.AnalysisRun, *runState, *logger.Logger) error,
) (err error) {
	plog := log.WithField("phase", string(p))
	timer := o.deps.Metrics.StartPhase(string(p))
	plog.Info(fmt.Sprintf("Running phase%d", p.Index()+1))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", p, r)
		}
		result := "success"
		if err != nil {
			result = "failure"
		}
		d := timer.Stop(result)
		if err == nil {
			plog.WithField("duration", d.Seconds()).Info(fmt.Sprintf("phase%d completed", p.Index()+1))
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, run, st, plog)
}

// phase1 counts the instruments available for the date
func (o *Orchestrator) phase1(ctx context.Context, run *contracts.AnalysisRun, _ *runState, log *logger.Logger) error {
	n, err := o.deps.Universe.CountInstruments(ctx, run.RunDate)
	if err != nil {
		return contracts.DataUnavailable("phase1.count_instruments", err)
	}
	if n == 0 {
		return contracts.DataUnavailable("phase1.count_instruments",
			fmt.Errorf("no instruments priced on or before %s", run.RunDate.Format("2006-01-02")))
	}
	if err := o.deps.Store.CompletePhase1(ctx, run, n); err != nil {
		return err
	}
	log.WithField("instruments", n).Debug("Instrument count recorded")
	return nil
}

// phase2 measures market conditions
func (o *Orchestrator) phase2(ctx context.Context, run *contracts.AnalysisRun, st *runState, log *logger.Logger) error {
	snap, err := o.deps.Market.Analyze(ctx, run.RunDate)
	if err != nil {
		return err
	}
	snap.AnalysisRunID = run.ID
	if err := o.deps.Store.SaveMarketSnapshot(ctx, run, snap); err != nil {
		return err
	}
	st.snapshot = snap

	log.WithFields(map[string]interface{}{
		"sentiment":   string(snap.Sentiment),
		"momentum":    snap.MomentumScore,
		"convergence": snap.SignalConvergence,
	}).Debug("Market snapshot saved")
	return nil
}

// phase3 shortlists candidates with the completion service
func (o *Orchestrator) phase3(ctx context.Context, run *contracts.AnalysisRun, st *runState, log *logger.Logger) error {
	universe, err := o.deps.Universe.GetInstrumentUniverse(ctx, run.RunDate)
	if err != nil {
		return contracts.DataUnavailable("phase3.universe", err)
	}

	candidates, res, err := o.deps.AI.Screen(ctx, st.snapshot, universe)
	if err != nil {
		return err
	}
	if err := o.deps.Store.SaveAIScreening(ctx, run, res, candidates); err != nil {
		return err
	}
	st.candidates = candidates

	log.WithFields(map[string]interface{}{
		"universe":   len(universe),
		"candidates": len(candidates),
		"cost":       res.APICost,
	}).Debug("AI screening saved")
	return nil
}

// phase4 scores candidates and keeps the top selections
func (o *Orchestrator) phase4(ctx context.Context, run *contracts.AnalysisRun, st *runState, log *logger.Logger) error {
	res, err := o.deps.Technical.Screen(ctx, run.RunDate, st.candidates)
	if err != nil {
		return err
	}
	if err := o.deps.Store.SaveTechnicalScreening(ctx, run, &res.Summary, res.Selections); err != nil {
		return err
	}
	st.selections = res.Selections
	st.excluded = append(st.excluded, res.Excluded...)

	log.WithFields(map[string]interface{}{
		"valid":      res.Summary.ValidCount,
		"excluded":   res.Summary.ExcludedCount,
		"selections": len(res.Selections),
	}).Debug("Technical screening saved")
	return nil
}

// phase5 prices each selection
func (o *Orchestrator) phase5(ctx context.Context, run *contracts.AnalysisRun, st *runState, log *logger.Logger) error {
	signals, excluded, err := o.deps.Pricing.PriceSelections(ctx, o.deps.Bars, run.RunDate, st.selections)
	if err != nil {
		return err
	}
	for i := range signals {
		signals[i].AnalysisRunID = run.ID
		signals[i].TargetTradeDate = run.TargetTradeDate
	}
	if err := o.deps.Store.SaveSignals(ctx, run, signals); err != nil {
		return err
	}
	st.signals = signals
	st.excluded = append(st.excluded, excluded...)
	o.deps.Metrics.RecordSignals(len(signals))

	log.WithFields(map[string]interface{}{
		"signals":  len(signals),
		"excluded": len(excluded),
	}).Debug("Trading signals saved")
	return nil
}

// fail records the FAILED state; the error phase is the first phase without a flag
func (o *Orchestrator) fail(ctx context.Context, run *contracts.AnalysisRun, cause error, log *logger.Logger) {
	run.Status = contracts.RunStatusFailed
	run.ErrorPhase = string(run.CurrentPhase())
	run.ErrorMessage = cause.Error()

	log.WithError(cause).WithFields(map[string]interface{}{
		"error_phase": run.ErrorPhase,
		"kind":        string(contracts.KindOf(cause)),
	}).Error("Analysis phase failed")

	// 취소된 ctx에서도 실패 상태는 기록
	err := o.deps.Store.FinishRun(context.WithoutCancel(ctx), run)
	switch {
	case errors.Is(err, contracts.ErrRunFinalized):
		log.WithError(err).Warn("Run was already finalized, keeping the stored status")
	case err != nil:
		log.WithError(err).Error("Failed to record failed run")
	}
}

// ReconcileStaleRuns marks RUNNING runs older than olderThan as FAILED and
// returns how many were updated
func (o *Orchestrator) ReconcileStaleRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	now := o.now()
	stale, err := o.deps.Store.ListStaleRuns(ctx, now.Add(-olderThan))
	if err != nil {
		return 0, err
	}

	var errs []error
	n := 0
	for i := range stale {
		run := &stale[i]
		run.Status = contracts.RunStatusFailed
		run.ErrorPhase = string(run.CurrentPhase())
		run.ErrorMessage = StaleRunMessage
		run.EndTime = &now
		run.DurationSeconds = now.Sub(run.StartTime).Seconds()
		if err := o.deps.Store.FinishRun(ctx, run); err != nil {
			if errors.Is(err, contracts.ErrRunFinalized) {
				// 목록 조회 후 스스로 종료된 run
				o.logger.WithRun(run.ID, run.TraceID).Debug("Run finished before reconciliation")
				continue
			}
			errs = append(errs, fmt.Errorf("run %d: %w", run.ID, err))
			continue
		}
		n++
		o.logger.WithRun(run.ID, run.TraceID).WithField("error_phase", run.ErrorPhase).Warn("Stale run reconciled")
		o.deps.Metrics.RecordRun(string(contracts.RunStatusFailed))
	}
	return n, errors.Join(errs...)
}

// StaleRunMessage is the error message written on reconciled runs
const StaleRunMessage = "stale run reconciled"

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextBusinessDay returns the next weekday after d
func NextBusinessDay(d time.Time) time.Time {
	next := d.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
