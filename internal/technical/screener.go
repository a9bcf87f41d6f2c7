// Package technical narrows AI candidates to the final selections with a
// five-factor chart score (phase 4).
package technical

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// Result is the phase 4 output
type Result struct {
	Summary    contracts.TechnicalScreeningResult
	Selections []contracts.TechnicalSelection
	Excluded   []contracts.Exclusion
}

// Screener implements phase 4: technical screening
// ⭐ SSOT: 기술적 점수 산출은 여기서만
type Screener struct {
	bars   contracts.BarSource
	cfg    strategyconfig.Technical
	logger *logger.Logger
	now    func() time.Time
}

// NewScreener creates a technical screener
func NewScreener(bars contracts.BarSource, cfg strategyconfig.Technical, log *logger.Logger) *Screener {
	return &Screener{
		bars:   bars,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Screen scores every candidate with history up to asOf and keeps the top
// SelectionCount by final score. Per-candidate problems exclude that
// candidate only; a cancelled context aborts the phase.
func (s *Screener) Screen(ctx context.Context, asOf time.Time, candidates []contracts.AICandidate) (*Result, error) {
	start := s.now()
	s.logger.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"as_of":      asOf.Format("2006-01-02"),
	}).Info("Technical screening started")

	valid := make([]contracts.TechnicalSelection, 0, len(candidates))
	var excluded []contracts.Exclusion

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := s.evaluate(ctx, asOf, c)
		if !out.Ok() {
			excluded = append(excluded, *out.Excluded)
			s.logger.WithFields(map[string]interface{}{
				"code":   out.Excluded.Code,
				"kind":   string(out.Excluded.Kind),
				"reason": out.Excluded.Reason,
			}).Debug("Candidate excluded from technical screening")
			continue
		}
		valid = append(valid, out.Value)
	}

	sortSelections(valid)
	n := SelectionCount(len(valid), s.cfg.SelectionDivisor, s.cfg.MinSelections, s.cfg.MaxSelections)
	selections := append([]contracts.TechnicalSelection(nil), valid[:n]...)
	for i := range selections {
		selections[i].Rank = i + 1
	}

	result := &Result{
		Summary: contracts.TechnicalScreeningResult{
			InputCount:    len(candidates),
			ValidCount:    len(valid),
			ExcludedCount: len(excluded),
			FinalCount:    len(selections),
			ExecTime:      s.now().Sub(start),
		},
		Selections: selections,
		Excluded:   excluded,
	}

	for _, sel := range selections {
		if sel.FinalScore < s.cfg.MinFinalScore {
			s.logger.WithFields(map[string]interface{}{
				"code":        sel.Code,
				"final_score": sel.FinalScore,
			}).Warn("Selected candidate below minimum final score")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"input":    len(candidates),
		"valid":    len(valid),
		"excluded": len(excluded),
		"selected": len(selections),
	}).Info("Technical screening completed")

	return result, nil
}

// evaluate loads history and scores one candidate
func (s *Screener) evaluate(ctx context.Context, asOf time.Time, c contracts.AICandidate) contracts.Outcome[contracts.TechnicalSelection] {
	from := asOf.AddDate(0, 0, -s.cfg.HistoryDays)
	bars, err := s.bars.GetDailyBars(ctx, c.Code, from, asOf)
	if err != nil {
		return contracts.Exclude[contracts.TechnicalSelection](c.Code, contracts.KindDataUnavailable, err.Error())
	}
	return Evaluate(c, bars, s.cfg)
}

// Evaluate scores one candidate from its bars, oldest first.
// Short history is InsufficientHistory; a non-finite score is a ScoringError.
func Evaluate(c contracts.AICandidate, bars []contracts.Bar, cfg strategyconfig.Technical) (out contracts.Outcome[contracts.TechnicalSelection]) {
	defer func() {
		if r := recover(); r != nil {
			out = contracts.Exclude[contracts.TechnicalSelection](c.Code, contracts.KindScoringError, fmt.Sprintf("panic: %v", r))
		}
	}()

	if len(bars) < cfg.MinBars {
		return contracts.Exclude[contracts.TechnicalSelection](c.Code, contracts.KindInsufficientHistory,
			fmt.Sprintf("%d bars < %d required", len(bars), cfg.MinBars))
	}

	snap := TakeSnapshot(bars)
	b := Score(snap)
	technical := b.Total()
	final := FinalScore(technical, c.AIScore, cfg.TechnicalWeight, cfg.AIWeight)
	if math.IsNaN(final) || math.IsInf(final, 0) {
		return contracts.Exclude[contracts.TechnicalSelection](c.Code, contracts.KindScoringError, "non-finite score")
	}

	return contracts.Keep(contracts.TechnicalSelection{
		Code:           c.Code,
		Name:           c.Name,
		SMAScore:       b.SMA,
		RSIScore:       b.RSI,
		MACDScore:      b.MACD,
		BBScore:        b.BB,
		VolumeScore:    b.Volume,
		TechnicalScore: technical,
		AIScore:        c.AIScore,
		FinalScore:     final,
		Indicators:     indicatorsOf(snap),
	})
}

// sortSelections orders by final score, then AI score, then code
func sortSelections(list []contracts.TechnicalSelection) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FinalScore != list[j].FinalScore {
			return list[i].FinalScore > list[j].FinalScore
		}
		if list[i].AIScore != list[j].AIScore {
			return list[i].AIScore > list[j].AIScore
		}
		return list[i].Code < list[j].Code
	})
}
