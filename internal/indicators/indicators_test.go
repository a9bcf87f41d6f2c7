package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)

	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 3.0, got[3], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)
}

func TestEMA_SeededWithFirstValue(t *testing.T) {
	got := EMA([]float64{10, 20}, 3) // alpha = 0.5

	assert.InDelta(t, 10.0, got[0], 1e-9)
	assert.InDelta(t, 15.0, got[1], 1e-9)
}

func TestRSI(t *testing.T) {
	t.Run("all gains", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(100 + i)
		}
		v, ok := Last(RSI(closes, 14))
		require.True(t, ok)
		assert.InDelta(t, 100.0, v, 1e-9)
	})

	t.Run("flat series is undefined", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100
		}
		_, ok := Last(RSI(closes, 14))
		assert.False(t, ok)
	})

	t.Run("balanced gains and losses", func(t *testing.T) {
		closes := []float64{100}
		for i := 0; i < 20; i++ {
			if i%2 == 0 {
				closes = append(closes, closes[len(closes)-1]+1)
			} else {
				closes = append(closes, closes[len(closes)-1]-1)
			}
		}
		v, ok := Last(RSI(closes, 14))
		require.True(t, ok)
		assert.InDelta(t, 50.0, v, 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		_, ok := Last(RSI([]float64{1, 2, 3}, 14))
		assert.False(t, ok)
	})
}

func TestMACD_RisingSeriesIsPositive(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 * math.Pow(1.01, float64(i))
	}

	m := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	macd, _ := Last(m.MACD)
	signal, _ := Last(m.Signal)
	hist, _ := Last(m.Histogram)

	assert.Greater(t, macd, 0.0)
	assert.Greater(t, macd, signal)
	assert.InDelta(t, macd-signal, hist, 1e-9)
}

func TestBollinger_UsesSampleStdDev(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	bb := Bollinger(closes, 8, 2)

	mid, ok := Last(bb.Middle)
	require.True(t, ok)
	upper, _ := Last(bb.Upper)

	sd := SampleStdDev(closes)
	assert.InDelta(t, 5.0, mid, 1e-9)
	assert.InDelta(t, 5.0+2*sd, upper, 1e-9)
	assert.InDelta(t, 2.0, PopStdDev(closes), 1e-9)
}

func TestATR(t *testing.T) {
	bars := make([]contracts.Bar, 15)
	for i := range bars {
		bars[i] = contracts.Bar{High: 110, Low: 100, Close: 105}
	}

	v, ok := Last(ATR(bars, 14))
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9)

	_, ok = Last(ATR(bars[:10], 14))
	assert.False(t, ok)
}

func TestVolumeRatio(t *testing.T) {
	bars := make([]contracts.Bar, 20)
	for i := range bars {
		bars[i].Volume = 1000
	}
	bars[19].Volume = 2900 // avg = (19*1000+2900)/20 = 1095

	r, ok := VolumeRatio(bars, 20)
	require.True(t, ok)
	assert.InDelta(t, 2900.0/1095.0, r, 1e-9)

	_, ok = VolumeRatio(bars[:10], 20)
	assert.False(t, ok)
}
