package technical

import (
	"math"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/indicators"
)

// Sub-score ceilings
const (
	MaxSMAScore    = 20.0
	MaxRSIScore    = 15.0
	MaxMACDScore   = 15.0
	MaxBBScore     = 10.0
	MaxVolumeScore = 10.0
	MaxTechnical   = MaxSMAScore + MaxRSIScore + MaxMACDScore + MaxBBScore + MaxVolumeScore
)

// Snapshot is the latest indicator state of one instrument.
// A false *OK flag means the indicator had too little history.
type Snapshot struct {
	Close float64

	SMA20, SMA50, SMA200       float64
	SMA20OK, SMA50OK, SMA200OK bool

	RSI   float64
	RSIOK bool

	MACD, Signal, Histogram float64
	MACDOK                  bool

	Upper, Middle, Lower float64
	BandOK               bool

	VolumeRatio   float64
	VolumeRatioOK bool
}

// Breakdown holds the five sub-scores
type Breakdown struct {
	SMA    float64
	RSI    float64
	MACD   float64
	BB     float64
	Volume float64
}

// Total returns the technical score (0..70)
func (b Breakdown) Total() float64 {
	return b.SMA + b.RSI + b.MACD + b.BB + b.Volume
}

// TakeSnapshot computes the indicator state at the last bar
func TakeSnapshot(bars []contracts.Bar) Snapshot {
	closes := contracts.Closes(bars)
	var s Snapshot
	if len(closes) == 0 {
		return s
	}
	s.Close = closes[len(closes)-1]

	s.SMA20, s.SMA20OK = indicators.Last(indicators.SMA(closes, 20))
	s.SMA50, s.SMA50OK = indicators.Last(indicators.SMA(closes, 50))
	s.SMA200, s.SMA200OK = indicators.Last(indicators.SMA(closes, 200))

	s.RSI, s.RSIOK = indicators.Last(indicators.RSI(closes, indicators.RSIPeriod))

	m := indicators.MACD(closes, indicators.MACDFast, indicators.MACDSlow, indicators.MACDSignal)
	macd, ok1 := indicators.Last(m.MACD)
	sig, ok2 := indicators.Last(m.Signal)
	hist, ok3 := indicators.Last(m.Histogram)
	s.MACD, s.Signal, s.Histogram = macd, sig, hist
	s.MACDOK = ok1 && ok2 && ok3

	bb := indicators.Bollinger(closes, indicators.BBPeriod, indicators.BBStdDevs)
	upper, ok1 := indicators.Last(bb.Upper)
	middle, ok2 := indicators.Last(bb.Middle)
	lower, ok3 := indicators.Last(bb.Lower)
	s.Upper, s.Middle, s.Lower = upper, middle, lower
	s.BandOK = ok1 && ok2 && ok3

	s.VolumeRatio, s.VolumeRatioOK = indicators.VolumeRatio(bars, indicators.VolumePeriod)
	return s
}

// Score applies the five-factor table to a snapshot
func Score(s Snapshot) Breakdown {
	return Breakdown{
		SMA:    scoreSMA(s),
		RSI:    scoreRSI(s),
		MACD:   scoreMACD(s),
		BB:     scoreBollinger(s),
		Volume: scoreVolume(s),
	}
}

// close>sma20>sma50>sma200 → 20, close>sma20>sma50 → 15, close>sma20 → 10.
// The 15 and 20 tiers need both long windows; without SMA200 only close>sma20 counts.
func scoreSMA(s Snapshot) float64 {
	if !s.SMA20OK || s.Close <= s.SMA20 {
		return 0
	}
	if s.SMA50OK && s.SMA200OK && s.SMA20 > s.SMA50 {
		if s.SMA50 > s.SMA200 {
			return 20
		}
		return 15
	}
	return 10
}

func scoreRSI(s Snapshot) float64 {
	if !s.RSIOK {
		return 0
	}
	switch {
	case s.RSI >= 50 && s.RSI <= 70:
		return 15
	case s.RSI >= 30 && s.RSI < 50:
		return 10
	case s.RSI < 30:
		return 10 // 과매도 반등
	default:
		return 5 // 과매수 주의
	}
}

func scoreMACD(s Snapshot) float64 {
	if !s.MACDOK || s.MACD <= s.Signal {
		return 0
	}
	if s.Histogram > 0 {
		return 15
	}
	return 10
}

// BandPosition returns (close-lower)/(upper-lower); a zero-width band is 0.5
func BandPosition(s Snapshot) float64 {
	width := s.Upper - s.Lower
	if !s.BandOK || width == 0 {
		return 0.5
	}
	return (s.Close - s.Lower) / width
}

func scoreBollinger(s Snapshot) float64 {
	if !s.BandOK {
		return 0
	}
	if s.Upper-s.Lower == 0 {
		return 5
	}
	pos := BandPosition(s)
	switch {
	case pos >= 0.70:
		return 10
	case pos >= 0.55:
		return 7
	case pos >= 0.45:
		return 5
	default:
		return 3
	}
}

func scoreVolume(s Snapshot) float64 {
	if !s.VolumeRatioOK {
		return 5
	}
	switch {
	case s.VolumeRatio >= 1.5:
		return 10
	case s.VolumeRatio >= 1.2:
		return 7
	case s.VolumeRatio >= 0.8:
		return 5
	default:
		return 2
	}
}

// FinalScore blends the technical score with the AI confidence, rounded to 2 places
func FinalScore(technical, ai, technicalWeight, aiWeight float64) float64 {
	return math.Round((technicalWeight*technical+aiWeight*ai)*100) / 100
}

// SelectionCount returns clamp(valid/divisor, min, max), or valid when fewer than min
func SelectionCount(valid, divisor, min, max int) int {
	if valid < min {
		return valid
	}
	if divisor <= 0 {
		divisor = 1
	}
	n := valid / divisor
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

func indicatorsOf(s Snapshot) contracts.TechnicalIndicators {
	ind := contracts.TechnicalIndicators{
		Close:      s.Close,
		SMA20:      s.SMA20,
		RSI:        s.RSI,
		MACD:       s.MACD,
		MACDSignal: s.Signal,
		MACDHist:   s.Histogram,
		BBPosition: BandPosition(s),
		VolRatio:   s.VolumeRatio,
	}
	if s.SMA50OK {
		v := s.SMA50
		ind.SMA50 = &v
	}
	if s.SMA200OK {
		v := s.SMA200
		ind.SMA200 = &v
	}
	return ind
}
