package core

import "time"

// AssetType distinguishes broad funds from single-company equities.
type AssetType string

const (
	AssetStock     AssetType = "stock"
	AssetIndexFund AssetType = "index_fund"
	AssetIndex     AssetType = "index"
)

// Quote represents a real-time price quote
type Quote struct {
	Symbol string
	Price  float64
	Time   time.Time
	Source string
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0
}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string
	Interval string // "1d"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
}

// Closes extracts closing prices in bar order.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts volumes in bar order.
func Volumes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// Range52W returns the lowest low and highest high across bars.
// ok is false when bars is empty.
func Range52W(bars []OHLCV) (low, high float64, ok bool) {
	if len(bars) == 0 {
		return 0, 0, false
	}
	low, high = bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	return low, high, true
}

// RangePosition places price within [low, high] on a 0..100 scale.
// A degenerate range yields 50.
func RangePosition(price, low, high float64) float64 {
	if high <= low {
		return 50
	}
	pos := (price - low) / (high - low) * 100
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}
