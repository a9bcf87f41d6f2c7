// Package pricing turns a selected instrument's history into buy, target and
// stop-loss prices (phase 5).
package pricing

import (
	"math"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// touchTolerance is the relative distance that counts as touching a level
const touchTolerance = 0.02

// Levels are the support/resistance and pivot levels of a history
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`

	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	S1    float64 `json:"s1"`
	R2    float64 `json:"r2"`
	S2    float64 `json:"s2"`

	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Current float64 `json:"current_price"`

	SwingLows  int `json:"swing_lows"`
	SwingHighs int `json:"swing_highs"`

	SupportStrength    float64 `json:"support_strength"`
	ResistanceStrength float64 `json:"resistance_strength"`
}

// Detector finds support and resistance from swing points
type Detector struct {
	halfWidth  int
	swingCount int
}

// NewDetector creates a detector with the given swing half-width and the
// number of most recent swings averaged into each level
func NewDetector(halfWidth, swingCount int) *Detector {
	return &Detector{halfWidth: halfWidth, swingCount: swingCount}
}

// FindLevels computes levels over the last lookback bars (all bars if fewer).
// Support is strictly below resistance whenever the window has a nonzero range.
func (d *Detector) FindLevels(history []contracts.Bar, lookback int) Levels {
	if len(history) == 0 {
		return Levels{}
	}
	if lookback <= 0 || lookback > len(history) {
		lookback = len(history)
	}
	window := history[len(history)-lookback:]

	lows := make([]float64, len(window))
	highs := make([]float64, len(window))
	for i, b := range window {
		lows[i] = b.Low
		highs[i] = b.High
	}
	low, high := minOf(lows), maxOf(highs)

	swingLows := swings(lows, d.halfWidth, func(v, ext float64) bool { return v <= ext })
	swingHighs := swings(highs, d.halfWidth, func(v, ext float64) bool { return v >= ext })

	support := low
	if recent := lastN(swingLows, d.swingCount); len(recent) > 0 {
		support = mean(recent)
	}
	resistance := high
	if recent := lastN(swingHighs, d.swingCount); len(recent) > 0 {
		resistance = mean(recent)
	}
	support = RoundPsychological(support)
	resistance = RoundPsychological(resistance)

	// 반올림 후 역전/동일 시 구간 극값으로 대체
	if support >= resistance {
		support, resistance = RoundPsychological(low), RoundPsychological(high)
	}
	if support >= resistance {
		support, resistance = low, high
	}

	last := history[len(history)-1]
	pivot := (last.High + last.Low + last.Close) / 3
	rng := last.High - last.Low

	return Levels{
		Support:            support,
		Resistance:         resistance,
		Pivot:              pivot,
		R1:                 2*pivot - last.Low,
		S1:                 2*pivot - last.High,
		R2:                 pivot + rng,
		S2:                 pivot - rng,
		High:               high,
		Low:                low,
		Current:            last.Close,
		SwingLows:          len(swingLows),
		SwingHighs:         len(swingHighs),
		SupportStrength:    Strength(window, support, true),
		ResistanceStrength: Strength(window, resistance, false),
	}
}

// swings returns the values that are the extreme of their symmetric
// [i-w, i+w] neighbourhood, in chronological order
func swings(values []float64, w int, isExtreme func(v, ext float64) bool) []float64 {
	var out []float64
	for i := w; i < len(values)-w; i++ {
		ok := true
		for j := i - w; j <= i+w; j++ {
			if !isExtreme(values[i], values[j]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, values[i])
		}
	}
	return out
}

// RoundPsychological rounds to the nearest 50/100/500/1000 by price band
func RoundPsychological(price float64) float64 {
	var unit float64
	switch {
	case price < 1000:
		unit = 50
	case price < 10000:
		unit = 100
	case price < 100000:
		unit = 500
	default:
		unit = 1000
	}
	return math.Round(price/unit) * unit
}

// Strength scores a level 0..100 from touches within 2% and the volume at them
func Strength(bars []contracts.Bar, level float64, support bool) float64 {
	if level <= 0 || len(bars) == 0 {
		return 0
	}

	touches := 0
	var touchVolume, totalVolume float64
	for _, b := range bars {
		totalVolume += float64(b.Volume)
		price := b.High
		if support {
			price = b.Low
		}
		if math.Abs(price-level)/level < touchTolerance {
			touches++
			touchVolume += float64(b.Volume)
		}
	}
	if touches == 0 {
		return 0
	}

	touchScore := math.Min(float64(touches)*10, 50)
	volumeScore := 0.0
	if avg := totalVolume / float64(len(bars)); avg > 0 {
		volumeScore = math.Min(touchVolume/float64(touches)/avg*25, 50)
	}
	return math.Min(touchScore+volumeScore, 100)
}

func lastN(values []float64, n int) []float64 {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	m := math.Inf(1)
	for _, v := range values {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}
