// Package signals detects technical events across a set of holdings from
// one batched history fetch and one round of descriptor lookups.
package signals

import (
	"time"

	"github.com/newthinker/stonks/internal/portfolio"
)

// Thresholds tune signal detection. Percentages are in percent, ratios are
// multiples of the trailing average volume.
type Thresholds struct {
	GapVolume            float64
	MAProximityPct       float64
	NearHighPct          float64
	Breakout50Volume     float64
	Breakout200Volume    float64
	EarningsWindowDays   int
	EarningsImminentDays int
}

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GapVolume:            1.5,
		MAProximityPct:       5,
		NearHighPct:          5,
		Breakout50Volume:     1.5,
		Breakout200Volume:    2.0,
		EarningsWindowDays:   7,
		EarningsImminentDays: 3,
	}
}

// Signal kinds, used as report keys and metric labels.
const (
	KindGap         = "gap"
	KindMAProximity = "ma_proximity"
	KindBelowMA200  = "below_ma_200"
	KindNearHigh    = "near_high"
	KindBreakout    = "ma_breakout"
	KindEarnings    = "earnings"
)

// Holding identifies the symbol an event belongs to.
type Holding struct {
	Symbol      string   `json:"symbol"`
	IsIndexFund bool     `json:"is_index_fund"`
	Accounts    []string `json:"accounts"`
}

// IndexFund reports whether the event concerns an index fund or ETF.
func (h Holding) IndexFund() bool { return h.IsIndexFund }

type GapType string

const (
	GapUp   GapType = "Gap Up"
	GapDown GapType = "Gap Down"
)

// GapEvent is a price gap between the last two sessions.
type GapEvent struct {
	Holding
	Type        GapType `json:"gap_type"`
	PctChange   float64 `json:"pct_change"`
	VolumeRatio float64 `json:"volume_ratio"`
	HighVolume  bool    `json:"is_high_volume"`
}

// MAProximityEvent is a close within the proximity band of a moving average.
type MAProximityEvent struct {
	Holding
	Period    int     `json:"period"`
	MAType    string  `json:"ma_type"`
	Price     float64 `json:"price"`
	MAValue   float64 `json:"ma_value"`
	PctOffset float64 `json:"pct_offset"`
}

// BelowMA200Event is a close under the 200-day moving average.
type BelowMA200Event struct {
	Holding
	Price    float64 `json:"price"`
	MA200    float64 `json:"ma_200"`
	PctBelow float64 `json:"pct_below"`
}

// NearHighEvent is a price within the band of its 52-week high.
type NearHighEvent struct {
	Holding
	Price       float64 `json:"price"`
	High52      float64 `json:"high_52w"`
	PctFromHigh float64 `json:"pct_from_high"`
}

type Direction string

const (
	Bullish Direction = "Bullish"
	Bearish Direction = "Bearish"
)

// Breakout kinds.
const (
	GoldenCross     = "Golden Cross"
	DeathCross      = "Death Cross"
	MA50Breakout    = "50-day MA Breakout"
	MA50Breakdown   = "50-day MA Breakdown"
	MA200Breakout   = "200-day MA Breakout"
	MA200Breakdown  = "200-day MA Breakdown"
	breakoutHistory = 201
)

// BreakoutEvent is a moving-average crossover or a price crossing an average.
type BreakoutEvent struct {
	Holding
	Direction   Direction `json:"direction"`
	Kind        string    `json:"kind"`
	Price       float64   `json:"price"`
	MA50        float64   `json:"ma_50"`
	MA200       float64   `json:"ma_200"`
	VolumeRatio float64   `json:"volume_ratio"`
}

// EarningsEvent is an earnings report inside the upcoming window.
type EarningsEvent struct {
	Holding
	Date      time.Time `json:"date"`
	DateText  string    `json:"date_text"`
	DaysUntil int       `json:"days_until"`
	DaysText  string    `json:"days_text"`
	Timing    string    `json:"timing,omitempty"`
	Urgency   string    `json:"urgency"`
}

// Report holds every signal list, each sorted by its own key.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Symbols     []string           `json:"symbols"`
	Gaps        []GapEvent         `json:"gap_events"`
	MAProximity []MAProximityEvent `json:"ma_proximity_events"`
	BelowMA200  []BelowMA200Event  `json:"below_ma_200_events"`
	NearHighs   []NearHighEvent    `json:"near_high_events"`
	Breakouts   []BreakoutEvent    `json:"ma_breakout_events"`
	Earnings    []EarningsEvent    `json:"earnings_events"`
}

// Counts returns the number of events per kind.
func (r *Report) Counts() map[string]int {
	return map[string]int{
		KindGap:         len(r.Gaps),
		KindMAProximity: len(r.MAProximity),
		KindBelowMA200:  len(r.BelowMA200),
		KindNearHigh:    len(r.NearHighs),
		KindBreakout:    len(r.Breakouts),
		KindEarnings:    len(r.Earnings),
	}
}

// Groups for Filter.
const (
	GroupAll        = ""
	GroupIndexFunds = "funds"
	GroupIndividual = "individual"
)

// Filter returns a report restricted to index funds or individual stocks.
// Sort order is preserved. GroupAll returns r itself.
func (r *Report) Filter(group string) *Report {
	if group == GroupAll {
		return r
	}
	funds := group == GroupIndexFunds
	return &Report{
		GeneratedAt: r.GeneratedAt,
		Symbols:     r.Symbols,
		Gaps:        pick(r.Gaps, funds),
		MAProximity: pick(r.MAProximity, funds),
		BelowMA200:  pick(r.BelowMA200, funds),
		NearHighs:   pick(r.NearHighs, funds),
		Breakouts:   pick(r.Breakouts, funds),
		Earnings:    pick(r.Earnings, funds),
	}
}

type fundTagged interface {
	IndexFund() bool
}

// Split partitions events into index funds and individual stocks.
func Split[E fundTagged](events []E) (funds, individual []E) {
	return portfolio.Partition(events, func(e E) bool { return e.IndexFund() })
}

func pick[E fundTagged](events []E, funds bool) []E {
	f, ind := Split(events)
	if funds {
		return f
	}
	return ind
}
