// Package aiscreen shortlists candidates from the instrument universe with
// the completion service (phase 3).
package aiscreen

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// screeningRecorder is implemented by completers that keep a cost summary
type screeningRecorder interface {
	RecordScreening()
}

// Screener implements phase 3: AI candidate screening
// ⭐ SSOT: AI 후보 선별은 여기서만
type Screener struct {
	completer contracts.Completer
	cfg       strategyconfig.AIScreening
	maxTokens int
	logger    *logger.Logger
	now       func() time.Time
}

// NewScreener creates a screener over the given completion service
func NewScreener(completer contracts.Completer, cfg strategyconfig.AIScreening, log *logger.Logger) *Screener {
	return &Screener{
		completer: completer,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
}

// WithMaxTokens overrides the completion max_tokens (0 = client default)
func (s *Screener) WithMaxTokens(n int) *Screener {
	s.maxTokens = n
	return s
}

// Screen asks the completion service for candidates and validates them
// against universe. Only a provider failure or zero valid candidates is an
// error; fewer candidates than targeted is a degraded success.
func (s *Screener) Screen(ctx context.Context, snap *contracts.MarketSnapshot, universe []contracts.Instrument) ([]contracts.AICandidate, *contracts.AIScreeningResult, error) {
	if snap == nil {
		return nil, nil, &contracts.Error{Kind: contracts.KindValidationError, Op: "aiscreen.Screen", Err: errors.New("market snapshot is required")}
	}
	if len(universe) == 0 {
		return nil, nil, contracts.DataUnavailable("aiscreen.Screen", errors.New("empty instrument universe"))
	}

	start := s.now()
	prompt := BuildPrompt(snap, universe, s.cfg)

	s.logger.WithFields(map[string]interface{}{
		"provider":   s.completer.Provider(),
		"prompt":     string(prompt.Kind),
		"stock_rows": prompt.StockRows,
		"universe":   len(universe),
		"sentiment":  string(snap.Sentiment),
	}).Info("AI screening started")

	resp, err := s.completer.Complete(ctx, contracts.CompletionRequest{
		Prompt:    prompt.Text,
		MaxTokens: s.maxTokens,
		JSONMode:  true,
	})
	if err != nil {
		if contracts.IsKind(err, contracts.KindProviderError) {
			return nil, nil, err
		}
		return nil, nil, contracts.ProviderError("aiscreen.Screen", err)
	}

	proposals, method := Parse(resp.Text)
	if method == ParsedNone {
		preview := resp.Text
		if len(preview) > 500 {
			preview = preview[:500]
		}
		s.logger.WithField("preview", preview).Warn("AI response could not be parsed")
	}

	candidates, rejected := Validate(proposals, universe)
	if len(rejected) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"dropped":  len(rejected),
			"proposed": len(proposals),
		}).Warn("Dropped AI candidates not in universe")
		for _, r := range rejected {
			s.logger.WithFields(map[string]interface{}{
				"code":   r.Code,
				"reason": r.Reason,
			}).Debug("AI candidate rejected")
		}
	}

	if len(candidates) == 0 {
		return nil, nil, contracts.ProviderError("aiscreen.Screen",
			errors.New("completion produced zero valid candidates"))
	}
	if len(candidates) < s.cfg.TargetMin || len(candidates) > s.cfg.TargetMax {
		s.logger.WithFields(map[string]interface{}{
			"count":      len(candidates),
			"target_min": s.cfg.TargetMin,
			"target_max": s.cfg.TargetMax,
		}).Warn("AI candidate count outside target range")
	}

	if rec, ok := s.completer.(screeningRecorder); ok {
		rec.RecordScreening()
	}

	apiCalls := 1
	if resp.FromCache {
		apiCalls = 0
	}
	result := &contracts.AIScreeningResult{
		Provider:            s.completer.Provider(),
		Model:               resp.Model,
		PromptTokens:        resp.PromptTokens,
		CompletionTokens:    resp.CompletionTokens,
		APICost:             resp.CostUSD,
		APICalls:            apiCalls,
		InputCount:          len(universe),
		CandidateCount:      len(candidates),
		DroppedCount:        len(rejected),
		Duration:            s.now().Sub(start),
		Sentiment:           snap.Sentiment,
		SentimentConfidence: snap.SignalConvergence,
		FromCache:           resp.FromCache,
	}

	s.logger.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"dropped":    len(rejected),
		"parser":     string(method),
		"cost_usd":   resp.CostUSD,
		"cached":     resp.FromCache,
		"duration":   result.Duration.String(),
	}).Info("AI screening completed")

	return candidates, result, nil
}
