package indicator

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// LastSMA returns the moving average ending `back` bars before the last
// bar (back=0 is today, back=1 yesterday). ok is false when there is not
// enough history.
func LastSMA(prices []float64, period, back int) (float64, bool) {
	end := len(prices) - back
	if period <= 0 || back < 0 || end < period {
		return 0, false
	}
	var sum float64
	for _, p := range prices[end-period : end] {
		sum += p
	}
	return sum / float64(period), true
}

// PctOffset returns how far price sits from ref, in percent of ref.
func PctOffset(price, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return (price - ref) / ref * 100
}
