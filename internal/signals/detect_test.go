package signals

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatBars(n int, price float64, volume int64) []core.OHLCV {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.OHLCV, n)
	for i := range bars {
		bars[i] = core.OHLCV{
			Time:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: volume,
		}
	}
	return bars
}

func withLast(bars []core.OHLCV, close float64, volume int64) []core.OHLCV {
	last := &bars[len(bars)-1]
	last.Open, last.High, last.Low, last.Close = close, close, close, close
	last.Volume = volume
	return bars
}

func TestClassifyGap(t *testing.T) {
	yesterday := core.OHLCV{High: 100, Low: 95}
	tests := []struct {
		name  string
		today core.OHLCV
		want  GapType
		ok    bool
	}{
		{"gap up", core.OHLCV{High: 108, Low: 102}, GapUp, true},
		{"gap down", core.OHLCV{High: 94, Low: 90}, GapDown, true},
		{"inside", core.OHLCV{High: 99, Low: 96}, "", false},
		{"touching high", core.OHLCV{High: 104, Low: 100}, "", false},
		{"touching low", core.OHLCV{High: 95, Low: 92}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classifyGap(yesterday, tt.today)
			if ok != tt.ok || got != tt.want {
				t.Errorf("classifyGap() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDetectGap_Scenario(t *testing.T) {
	bars := flatBars(51, 97, 150)
	bars[49] = core.OHLCV{High: 100, Low: 95, Close: 98, Volume: 150}
	bars[50] = core.OHLCV{High: 108, Low: 102, Close: 106, Volume: 300}

	ev, ok := detectGap(Holding{Symbol: "XYZ"}, bars, DefaultThresholds())
	require.True(t, ok)
	assert.Equal(t, GapUp, ev.Type)
	assert.InDelta(t, 8.163, ev.PctChange, 0.001)
	assert.InDelta(t, 2.0, ev.VolumeRatio, 1e-9)
	assert.True(t, ev.HighVolume)
}

func TestDetectGap_ShortHistory(t *testing.T) {
	_, ok := detectGap(Holding{}, flatBars(1, 10, 100), DefaultThresholds())
	assert.False(t, ok)

	// Two bars: the volume average comes from the single prior day.
	bars := []core.OHLCV{
		{High: 10, Low: 9, Close: 9.5, Volume: 100},
		{High: 8.9, Low: 8, Close: 8.5, Volume: 120},
	}
	ev, ok := detectGap(Holding{}, bars, DefaultThresholds())
	require.True(t, ok)
	assert.Equal(t, GapDown, ev.Type)
	assert.InDelta(t, 1.2, ev.VolumeRatio, 1e-9)
	assert.False(t, ev.HighVolume)
}

func TestDetectMAProximity(t *testing.T) {
	bars := withLast(flatBars(201, 100, 1000), 102, 1000)

	events := detectMAProximity(Holding{Symbol: "XYZ"}, bars, DefaultThresholds())
	require.Len(t, events, 2)
	assert.Equal(t, 50, events[0].Period)
	assert.Equal(t, "50-day MA", events[0].MAType)
	assert.InDelta(t, 100.04, events[0].MAValue, 1e-9)
	assert.InDelta(t, 1.9592, events[0].PctOffset, 1e-3)
	assert.Equal(t, 200, events[1].Period)

	far := withLast(flatBars(201, 100, 1000), 130, 1000)
	assert.Empty(t, detectMAProximity(Holding{}, far, DefaultThresholds()))

	short := withLast(flatBars(60, 100, 1000), 101, 1000)
	events = detectMAProximity(Holding{}, short, DefaultThresholds())
	require.Len(t, events, 1, "no 200-day average on short history")
	assert.Equal(t, 50, events[0].Period)
}

func TestDetectBelowMA200(t *testing.T) {
	bars := withLast(flatBars(201, 100, 1000), 90, 1000)
	ev, ok := detectBelowMA200(Holding{Symbol: "XYZ"}, bars)
	require.True(t, ok)
	assert.InDelta(t, 99.95, ev.MA200, 1e-9)
	assert.Less(t, ev.PctBelow, 0.0)

	above := withLast(flatBars(201, 100, 1000), 101, 1000)
	_, ok = detectBelowMA200(Holding{}, above)
	assert.False(t, ok)

	_, ok = detectBelowMA200(Holding{}, flatBars(150, 100, 1000))
	assert.False(t, ok)
}

func TestDetectNearHigh(t *testing.T) {
	th := DefaultThresholds()

	ev, ok := detectNearHigh(Holding{Symbol: "XYZ"}, &marketdata.Info{Price: 195, High52: 200}, th)
	require.True(t, ok)
	assert.InDelta(t, -2.5, ev.PctFromHigh, 1e-9)

	_, ok = detectNearHigh(Holding{}, &marketdata.Info{Price: 180, High52: 200}, th)
	assert.False(t, ok)
	_, ok = detectNearHigh(Holding{}, &marketdata.Info{Price: 180}, th)
	assert.False(t, ok)
	_, ok = detectNearHigh(Holding{}, nil, th)
	assert.False(t, ok)
}

func TestCrossSignal(t *testing.T) {
	dir, kind, ok := crossSignal(99, 100, 101, 100.2)
	require.True(t, ok)
	assert.Equal(t, Bullish, dir)
	assert.Equal(t, GoldenCross, kind)

	dir, kind, ok = crossSignal(101, 100, 99, 100.2)
	require.True(t, ok)
	assert.Equal(t, Bearish, dir)
	assert.Equal(t, DeathCross, kind)

	_, _, ok = crossSignal(101, 100, 102, 100.2)
	assert.False(t, ok, "already above")
	_, _, ok = crossSignal(99, 100, 99.5, 100.2)
	assert.False(t, ok, "still below")
}

func TestDetectBreakouts(t *testing.T) {
	th := DefaultThresholds()

	bars := withLast(flatBars(201, 100, 1000), 110, 3000)
	events := detectBreakouts(Holding{Symbol: "XYZ"}, bars, th)
	require.Len(t, events, 3)
	assert.Equal(t, GoldenCross, events[0].Kind)
	assert.Equal(t, MA50Breakout, events[1].Kind)
	assert.Equal(t, MA200Breakout, events[2].Kind)
	for _, ev := range events {
		assert.Equal(t, Bullish, ev.Direction)
		assert.InDelta(t, 3.0, ev.VolumeRatio, 1e-9)
	}

	// 1.8x clears the 50-day gate but not the 200-day one; the cross is ungated.
	bars = withLast(flatBars(201, 100, 1000), 110, 1800)
	events = detectBreakouts(Holding{}, bars, th)
	require.Len(t, events, 2)
	assert.Equal(t, GoldenCross, events[0].Kind)
	assert.Equal(t, MA50Breakout, events[1].Kind)

	bars = withLast(flatBars(201, 100, 1000), 90, 1000)
	events = detectBreakouts(Holding{}, bars, th)
	require.Len(t, events, 1)
	assert.Equal(t, DeathCross, events[0].Kind)
	assert.Equal(t, Bearish, events[0].Direction)

	assert.Empty(t, detectBreakouts(Holding{}, withLast(flatBars(200, 100, 1000), 110, 5000), th),
		"needs 201 sessions")
}

func TestDetectEarnings(t *testing.T) {
	th := DefaultThresholds()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	at := func(days int) *marketdata.Earnings {
		return &marketdata.Earnings{Date: now.AddDate(0, 0, days), Timing: marketdata.TimingBeforeOpen}
	}

	tests := []struct {
		days    int
		ok      bool
		urgency string
		text    string
	}{
		{-1, false, "", ""},
		{0, true, "imminent", "today"},
		{1, true, "imminent", "in 1 day"},
		{3, true, "imminent", "in 3 days"},
		{4, true, "soon", "in 4 days"},
		{7, true, "soon", "in 7 days"},
		{8, false, "", ""},
	}
	for _, tt := range tests {
		ev, ok := detectEarnings(Holding{Symbol: "XYZ"}, at(tt.days), now, th)
		if ok != tt.ok {
			t.Errorf("days=%d: ok = %v, want %v", tt.days, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		assert.Equal(t, tt.urgency, ev.Urgency, "days=%d", tt.days)
		assert.Equal(t, tt.text, ev.DaysText, "days=%d", tt.days)
		assert.Equal(t, tt.days, ev.DaysUntil)
	}

	_, ok := detectEarnings(Holding{}, nil, now, th)
	assert.False(t, ok)
}

func TestSortReport(t *testing.T) {
	r := &Report{
		Gaps: []GapEvent{
			{Holding: Holding{Symbol: "A"}, PctChange: -3},
			{Holding: Holding{Symbol: "B"}, PctChange: 5},
			{Holding: Holding{Symbol: "C"}, PctChange: 1},
		},
		MAProximity: []MAProximityEvent{
			{Holding: Holding{Symbol: "A"}, PctOffset: -4},
			{Holding: Holding{Symbol: "B"}, PctOffset: 1},
			{Holding: Holding{Symbol: "C"}, PctOffset: -0.5},
		},
		BelowMA200: []BelowMA200Event{
			{Holding: Holding{Symbol: "A"}, PctBelow: -1},
			{Holding: Holding{Symbol: "B"}, PctBelow: -12},
		},
		NearHighs: []NearHighEvent{
			{Holding: Holding{Symbol: "A"}, PctFromHigh: -4},
			{Holding: Holding{Symbol: "B"}, PctFromHigh: 0.5},
		},
		Breakouts: []BreakoutEvent{
			{Holding: Holding{Symbol: "A"}, Direction: Bearish, VolumeRatio: 5},
			{Holding: Holding{Symbol: "B"}, Direction: Bullish, VolumeRatio: 1.6},
			{Holding: Holding{Symbol: "C"}, Direction: Bullish, VolumeRatio: 2.4},
		},
		Earnings: []EarningsEvent{
			{Holding: Holding{Symbol: "A"}, DaysUntil: 6},
			{Holding: Holding{Symbol: "B"}, DaysUntil: 1},
		},
	}
	sortReport(r)

	syms := func(n int, at func(int) string) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = at(i)
		}
		return out
	}
	assert.Equal(t, []string{"B", "C", "A"}, syms(3, func(i int) string { return r.Gaps[i].Symbol }))
	assert.Equal(t, []string{"C", "B", "A"}, syms(3, func(i int) string { return r.MAProximity[i].Symbol }))
	assert.Equal(t, []string{"B", "A"}, syms(2, func(i int) string { return r.BelowMA200[i].Symbol }))
	assert.Equal(t, []string{"B", "A"}, syms(2, func(i int) string { return r.NearHighs[i].Symbol }))
	assert.Equal(t, []string{"C", "B", "A"}, syms(3, func(i int) string { return r.Breakouts[i].Symbol }))
	assert.Equal(t, []string{"B", "A"}, syms(2, func(i int) string { return r.Earnings[i].Symbol }))

	for i := 1; i < len(r.MAProximity); i++ {
		if math.Abs(r.MAProximity[i-1].PctOffset) > math.Abs(r.MAProximity[i].PctOffset) {
			t.Errorf("MA proximity out of order at %d", i)
		}
	}
}

func TestReport_Filter(t *testing.T) {
	r := &Report{
		Gaps: []GapEvent{
			{Holding: Holding{Symbol: "VOO", IsIndexFund: true}},
			{Holding: Holding{Symbol: "AAPL"}},
		},
		Earnings: []EarningsEvent{{Holding: Holding{Symbol: "AAPL"}}},
	}

	assert.Same(t, r, r.Filter(GroupAll))

	funds := r.Filter(GroupIndexFunds)
	require.Len(t, funds.Gaps, 1)
	assert.Equal(t, "VOO", funds.Gaps[0].Symbol)
	assert.Empty(t, funds.Earnings)

	ind := r.Filter(GroupIndividual)
	require.Len(t, ind.Gaps, 1)
	assert.Equal(t, "AAPL", ind.Gaps[0].Symbol)
	assert.Len(t, ind.Earnings, 1)

	f, i := Split(r.Gaps)
	assert.Len(t, f, 1)
	assert.Len(t, i, 1)
}
