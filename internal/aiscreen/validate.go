package aiscreen

import (
	"sort"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// Rejection is a proposal dropped during validation
type Rejection struct {
	Code   string
	Reason string
}

// Validate keeps proposals whose code exists in the universe.
// Name, sector and price come from the universe row, never from the model.
// Duplicates keep the first proposal. Survivors are ranked by ai_score, ties
// keep the order the model returned them in.
func Validate(proposals []Proposal, universe []contracts.Instrument) ([]contracts.AICandidate, []Rejection) {
	byCode := make(map[string]contracts.Instrument, len(universe))
	for _, inst := range universe {
		byCode[inst.Code] = inst
	}

	seen := make(map[string]bool, len(proposals))
	candidates := make([]contracts.AICandidate, 0, len(proposals))
	var rejected []Rejection

	for _, p := range proposals {
		inst, ok := byCode[p.Code]
		switch {
		case !ok:
			rejected = append(rejected, Rejection{Code: p.Code, Reason: "unknown code"})
			continue
		case seen[p.Code]:
			rejected = append(rejected, Rejection{Code: p.Code, Reason: "duplicate"})
			continue
		}
		seen[p.Code] = true

		candidates = append(candidates, contracts.AICandidate{
			Code:         inst.Code,
			Name:         inst.Name,
			Sector:       inst.Sector,
			CurrentPrice: inst.Price,
			AIScore:      clampScore(p.Confidence),
			Reasoning:    p.Reason,
			Signals:      p.Signals,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AIScore > candidates[j].AIScore
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, rejected
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
