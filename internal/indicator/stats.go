package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is used to annualize daily statistics.
const TradingDaysPerYear = 252

// Mean returns the arithmetic mean, or 0 for empty input.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// VolumeRatio compares the last volume to the mean of up to `lookback`
// volumes before it. ok is false when there is no prior volume to compare.
func VolumeRatio(volumes []float64, lookback int) (float64, bool) {
	if len(volumes) < 2 || lookback <= 0 {
		return 0, false
	}
	today := volumes[len(volumes)-1]
	prior := volumes[:len(volumes)-1]
	if len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}
	avg := Mean(prior)
	if avg <= 0 {
		return 0, false
	}
	return today / avg, true
}

// Returns computes simple daily returns.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

// AnnualizedVolatility is the sample standard deviation of daily returns
// scaled to a year, in percent.
func AnnualizedVolatility(prices []float64) (float64, bool) {
	rets := Returns(prices)
	if len(rets) < 2 {
		return 0, false
	}
	return stat.StdDev(rets, nil) * math.Sqrt(TradingDaysPerYear) * 100, true
}

// RSI returns the latest Relative Strength Index for the period.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	rsi := talib.Rsi(closes, period)
	if len(rsi) == 0 {
		return 0, false
	}
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) {
		return 0, false
	}
	return last, true
}

// MACD returns the latest MACD line value (fast EMA minus slow EMA).
func MACD(closes []float64, fast, slow, signal int) (float64, bool) {
	if len(closes) < slow+signal {
		return 0, false
	}
	line, _, _ := talib.Macd(closes, fast, slow, signal)
	if len(line) == 0 {
		return 0, false
	}
	last := line[len(line)-1]
	if math.IsNaN(last) {
		return 0, false
	}
	return last, true
}
