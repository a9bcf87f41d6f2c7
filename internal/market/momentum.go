package market

import (
	"math"
	"sort"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// 10억 원
const billion = 1e9

// momentumRange is the raw score scale: max 20+30+15+20+15 = 85
const momentumRange = 85.0

// Momentum computes the five bounded sub-scores
func Momentum(kospiChange float64, flows contracts.MarketFlows, sectors map[string]float64, adRatio float64) contracts.MomentumBreakdown {
	b := contracts.MomentumBreakdown{
		IndexTrend:      indexTrendScore(kospiChange),
		InvestorFlow:    foreignScore(flows.Foreign) + institutionScore(flows.Institution) + retailScore(flows.Retail),
		InvestorBalance: balanceScore(flows),
		SectorMomentum:  sectorScore(sectors),
		MarketBreadth:   breadthScore(adRatio),
	}
	b.Raw = b.IndexTrend + b.InvestorFlow + b.InvestorBalance + b.SectorMomentum + b.MarketBreadth
	return b
}

// NormalizeMomentum maps the raw sum onto 0..100 around 50
func NormalizeMomentum(raw int) int {
	score := 50 + float64(raw)/momentumRange*50
	return int(math.Min(math.Max(score, 0), 100))
}

func indexTrendScore(change float64) int {
	switch {
	case change > 2.0:
		return 20
	case change > 1.0:
		return 15
	case change > 0.5:
		return 10
	case change > 0:
		return 5
	case change > -0.5:
		return 0
	case change > -1.0:
		return -5
	case change > -2.0:
		return -10
	default:
		return -20
	}
}

func foreignScore(v float64) int {
	switch {
	case v > 50*billion:
		return 15
	case v > 20*billion:
		return 10
	case v > 0:
		return 5
	case v > -20*billion:
		return -5
	case v > -50*billion:
		return -10
	default:
		return -15
	}
}

func institutionScore(v float64) int {
	switch {
	case v > 15*billion:
		return 10
	case v > 5*billion:
		return 5
	case v > -5*billion:
		return 0
	case v > -15*billion:
		return -5
	default:
		return -10
	}
}

// retailScore is contrarian: retail selling favours the market
func retailScore(v float64) int {
	switch {
	case v < -20*billion:
		return 5
	case v < -10*billion:
		return 3
	case v < 0:
		return 1
	case v < 10*billion:
		return 0
	default:
		return -2
	}
}

// balanceScore rewards big investors buying while retail sells
func balanceScore(f contracts.MarketFlows) int {
	big := f.Foreign + f.Institution
	switch {
	case big > 0 && f.Retail < 0:
		return 15
	case big > 0:
		return 10
	case big > -30*billion:
		return 5
	default:
		return -10
	}
}

// sectorScore = average sector return score + positive sector share score.
// No sector data scores 0.
func sectorScore(sectors map[string]float64) int {
	if len(sectors) == 0 {
		return 0
	}
	// 합산 순서 고정 (결정적 결과)
	names := make([]string, 0, len(sectors))
	for name := range sectors {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	positive := 0
	for _, name := range names {
		v := sectors[name]
		sum += v
		if v > 0 {
			positive++
		}
	}
	avg := sum / float64(len(sectors))
	ratio := float64(positive) / float64(len(sectors))

	var perf int
	switch {
	case avg > 1.0:
		perf = 10
	case avg > 0.5:
		perf = 7
	case avg > 0:
		perf = 4
	case avg > -0.5:
		perf = 0
	case avg > -1.0:
		perf = -4
	default:
		perf = -10
	}

	var breadth int
	switch {
	case ratio > 0.8:
		breadth = 10
	case ratio > 0.6:
		breadth = 7
	case ratio > 0.5:
		breadth = 4
	case ratio > 0.3:
		breadth = 0
	default:
		breadth = -10
	}
	return perf + breadth
}

func breadthScore(adRatio float64) int {
	switch {
	case adRatio > 0.7:
		return 15
	case adRatio > 0.6:
		return 10
	case adRatio > 0.5:
		return 5
	case adRatio > 0.4:
		return 0
	case adRatio > 0.3:
		return -5
	default:
		return -15
	}
}
