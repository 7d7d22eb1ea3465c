package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-9)
}

func TestVolumeRatio(t *testing.T) {
	volumes := make([]float64, 0, 61)
	for i := 0; i < 10; i++ {
		volumes = append(volumes, 10000) // outside the 50-day window
	}
	for i := 0; i < 50; i++ {
		volumes = append(volumes, 150)
	}
	volumes = append(volumes, 300)

	ratio, ok := VolumeRatio(volumes, 50)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, ratio, 1e-9)
}

func TestVolumeRatio_ShortHistory(t *testing.T) {
	ratio, ok := VolumeRatio([]float64{100, 200, 600}, 50)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, ratio, 1e-9)

	_, ok = VolumeRatio([]float64{100}, 50)
	assert.False(t, ok)

	_, ok = VolumeRatio([]float64{0, 0, 100}, 50)
	assert.False(t, ok, "zero average volume has no ratio")
}

func TestReturns(t *testing.T) {
	rets := Returns([]float64{100, 110, 99})
	assert.Len(t, rets, 2)
	assert.InDelta(t, 0.10, rets[0], 1e-9)
	assert.InDelta(t, -0.10, rets[1], 1e-9)
	assert.Nil(t, Returns([]float64{1}))
}

func TestAnnualizedVolatility(t *testing.T) {
	// Constant daily growth has zero dispersion
	prices := []float64{100}
	for i := 0; i < 30; i++ {
		prices = append(prices, prices[len(prices)-1]*1.01)
	}
	vol, ok := AnnualizedVolatility(prices)
	assert.True(t, ok)
	assert.InDelta(t, 0, vol, 1e-6)

	// Alternating +/-10% moves
	swings := []float64{100, 110, 99, 108.9, 98.01}
	vol, ok = AnnualizedVolatility(swings)
	assert.True(t, ok)
	assert.Greater(t, vol, 100.0)

	_, ok = AnnualizedVolatility([]float64{1, 2})
	assert.False(t, ok)
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	rsi, ok := RSI(rising, 14)
	assert.True(t, ok)
	assert.Greater(t, rsi, 99.0)

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	rsi, ok = RSI(falling, 14)
	assert.True(t, ok)
	assert.Less(t, rsi, 1.0)

	_, ok = RSI(rising[:10], 14)
	assert.False(t, ok)
}

func TestMACD(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50 * math.Pow(1.01, float64(i))
	}
	line, ok := MACD(closes, 12, 26, 9)
	assert.True(t, ok)
	assert.Greater(t, line, 0.0, "uptrend has a positive MACD line")

	_, ok = MACD(closes[:20], 12, 26, 9)
	assert.False(t, ok)
}
