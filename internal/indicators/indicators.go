// Package indicators implements the chart indicators shared by the market
// analyzer, the technical screener and the price calculator.
//
// Every series is oldest first. Positions without enough history hold NaN.
package indicators

import (
	"math"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// Standard parameters
const (
	RSIPeriod    = 14
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	BBPeriod     = 20
	BBStdDevs    = 2.0
	ATRPeriod    = 14
	VolumePeriod = 20
)

// SMA returns the simple moving average series
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average with alpha = 2/(span+1),
// seeded with the first value (no bias adjustment)
func EMA(values []float64, span int) []float64 {
	out := nanSeries(len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the relative strength index using rolling-mean gains and losses.
// A window with no movement at all yields NaN; a window with no losses yields 100.
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) <= period || period <= 0 {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgGain := gainSum / float64(period)
			avgLoss := lossSum / float64(period)
			out[i] = rsiValue(avgGain, avgLoss)
		}
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	// 부동소수점 누적 오차 보정
	if avgLoss < 1e-12 {
		avgLoss = 0
	}
	if avgGain < 1e-12 {
		avgGain = 0
	}
	switch {
	case avgGain == 0 && avgLoss == 0:
		return math.NaN()
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDSeries holds the three MACD lines
type MACDSeries struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD returns MACD(fast, slow, signal) from closes
func MACD(closes []float64, fast, slow, signal int) MACDSeries {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMA(line, signal)

	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return MACDSeries{MACD: line, Signal: sig, Histogram: hist}
}

// BollingerSeries holds the three bands
type BollingerSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns bands of period bars at k sample standard deviations
func Bollinger(closes []float64, period int, k float64) BollingerSeries {
	middle := SMA(closes, period)
	upper := nanSeries(len(closes))
	lower := nanSeries(len(closes))

	for i := period - 1; i < len(closes) && period > 1; i++ {
		sd := SampleStdDev(closes[i-period+1 : i+1])
		upper[i] = middle[i] + k*sd
		lower[i] = middle[i] - k*sd
	}
	return BollingerSeries{Upper: upper, Middle: middle, Lower: lower}
}

// ATR returns the rolling-mean average true range
func ATR(bars []contracts.Bar, period int) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prev := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return SMA(tr, period)
}

// Last returns the final value of a series, ok=false if empty or NaN
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopStdDev returns the population standard deviation
func PopStdDev(values []float64) float64 {
	return stddev(values, 0)
}

// SampleStdDev returns the sample (n-1) standard deviation
func SampleStdDev(values []float64) float64 {
	return stddev(values, 1)
}

func stddev(values []float64, ddof int) float64 {
	n := len(values)
	if n-ddof <= 0 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(n-ddof))
}

// VolumeRatio returns latest volume over the mean of the trailing period bars
// (latest included), ok=false when history is shorter than period
func VolumeRatio(bars []contracts.Bar, period int) (float64, bool) {
	if len(bars) < period || period <= 0 {
		return 0, false
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += float64(b.Volume)
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 0, false
	}
	return float64(bars[len(bars)-1].Volume) / avg, true
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
