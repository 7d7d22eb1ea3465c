package signals

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/indicator"
	"github.com/newthinker/stonks/internal/marketdata"
	"github.com/newthinker/stonks/internal/portfolio"
)

const volumeLookback = 50

// classifyGap compares today's bar with yesterday's. A gap up needs today's
// low above yesterday's high; a gap down needs today's high below
// yesterday's low.
func classifyGap(yesterday, today core.OHLCV) (GapType, bool) {
	switch {
	case today.Low > yesterday.High:
		return GapUp, true
	case today.High < yesterday.Low:
		return GapDown, true
	}
	return "", false
}

func detectGap(h Holding, bars []core.OHLCV, th Thresholds) (GapEvent, bool) {
	if len(bars) < 2 {
		return GapEvent{}, false
	}
	yesterday, today := bars[len(bars)-2], bars[len(bars)-1]
	typ, ok := classifyGap(yesterday, today)
	if !ok || yesterday.Close == 0 {
		return GapEvent{}, false
	}
	ratio, _ := indicator.VolumeRatio(core.Volumes(bars), volumeLookback)
	return GapEvent{
		Holding:     h,
		Type:        typ,
		PctChange:   indicator.PctOffset(today.Close, yesterday.Close),
		VolumeRatio: ratio,
		HighVolume:  ratio >= th.GapVolume,
	}, true
}

func detectMAProximity(h Holding, bars []core.OHLCV, th Thresholds) []MAProximityEvent {
	if len(bars) == 0 {
		return nil
	}
	closes := core.Closes(bars)
	price := closes[len(closes)-1]
	var out []MAProximityEvent
	for _, period := range []int{50, 200} {
		ma, ok := indicator.LastSMA(closes, period, 0)
		if !ok || ma <= 0 {
			continue
		}
		off := indicator.PctOffset(price, ma)
		if math.Abs(off) > th.MAProximityPct {
			continue
		}
		out = append(out, MAProximityEvent{
			Holding:   h,
			Period:    period,
			MAType:    fmt.Sprintf("%d-day MA", period),
			Price:     price,
			MAValue:   ma,
			PctOffset: off,
		})
	}
	return out
}

func detectBelowMA200(h Holding, bars []core.OHLCV) (BelowMA200Event, bool) {
	closes := core.Closes(bars)
	ma, ok := indicator.LastSMA(closes, 200, 0)
	if !ok || ma <= 0 {
		return BelowMA200Event{}, false
	}
	price := closes[len(closes)-1]
	off := indicator.PctOffset(price, ma)
	if off >= 0 {
		return BelowMA200Event{}, false
	}
	return BelowMA200Event{Holding: h, Price: price, MA200: ma, PctBelow: off}, true
}

func detectNearHigh(h Holding, info *marketdata.Info, th Thresholds) (NearHighEvent, bool) {
	if info == nil || info.Price <= 0 || info.High52 <= 0 {
		return NearHighEvent{}, false
	}
	pct := indicator.PctOffset(info.Price, info.High52)
	if math.Abs(pct) > th.NearHighPct {
		return NearHighEvent{}, false
	}
	return NearHighEvent{Holding: h, Price: info.Price, High52: info.High52, PctFromHigh: pct}, true
}

// crossSignal reports a crossover of the 50-day over the 200-day average
// between yesterday and today. No volume confirmation applies.
func crossSignal(prev50, prev200, cur50, cur200 float64) (Direction, string, bool) {
	switch {
	case prev50 <= prev200 && cur50 > cur200:
		return Bullish, GoldenCross, true
	case prev50 >= prev200 && cur50 < cur200:
		return Bearish, DeathCross, true
	}
	return "", "", false
}

// priceCross reports the close crossing a moving average between
// yesterday and today.
func priceCross(prevPrice, prevMA, price, ma float64) (Direction, bool) {
	switch {
	case prevPrice <= prevMA && price > ma:
		return Bullish, true
	case prevPrice >= prevMA && price < ma:
		return Bearish, true
	}
	return "", false
}

func detectBreakouts(h Holding, bars []core.OHLCV, th Thresholds) []BreakoutEvent {
	if len(bars) < breakoutHistory {
		return nil
	}
	closes := core.Closes(bars)
	cur50, _ := indicator.LastSMA(closes, 50, 0)
	prev50, _ := indicator.LastSMA(closes, 50, 1)
	cur200, _ := indicator.LastSMA(closes, 200, 0)
	prev200, _ := indicator.LastSMA(closes, 200, 1)
	last, prev := closes[len(closes)-1], closes[len(closes)-2]
	ratio, _ := indicator.VolumeRatio(core.Volumes(bars), volumeLookback)

	base := BreakoutEvent{Holding: h, Price: last, MA50: cur50, MA200: cur200, VolumeRatio: ratio}
	var out []BreakoutEvent

	if dir, kind, ok := crossSignal(prev50, prev200, cur50, cur200); ok {
		ev := base
		ev.Direction, ev.Kind = dir, kind
		out = append(out, ev)
	}

	checks := []struct {
		prevMA, ma, minVolume float64
		up, down              string
	}{
		{prev50, cur50, th.Breakout50Volume, MA50Breakout, MA50Breakdown},
		{prev200, cur200, th.Breakout200Volume, MA200Breakout, MA200Breakdown},
	}
	for _, c := range checks {
		dir, ok := priceCross(prev, c.prevMA, last, c.ma)
		if !ok || ratio < c.minVolume {
			continue
		}
		ev := base
		ev.Direction = dir
		ev.Kind = c.up
		if dir == Bearish {
			ev.Kind = c.down
		}
		out = append(out, ev)
	}
	return out
}

func detectEarnings(h Holding, earn *marketdata.Earnings, now time.Time, th Thresholds) (EarningsEvent, bool) {
	if earn == nil || earn.Date.IsZero() {
		return EarningsEvent{}, false
	}
	days := marketdata.DaysUntil(earn.Date, now)
	if days < 0 || days > th.EarningsWindowDays {
		return EarningsEvent{}, false
	}
	urgency := "soon"
	if days <= th.EarningsImminentDays {
		urgency = "imminent"
	}
	info := portfolio.EarningsInfo{DaysUntil: days, Date: earn.Date, Timing: earn.Timing}
	return EarningsEvent{
		Holding:   h,
		Date:      earn.Date,
		DateText:  info.DateString(),
		DaysUntil: days,
		DaysText:  daysText(days),
		Timing:    earn.Timing,
		Urgency:   urgency,
	}, true
}

func daysText(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "in 1 day"
	}
	return fmt.Sprintf("in %d days", days)
}

func sortReport(r *Report) {
	slices.SortStableFunc(r.Gaps, func(a, b GapEvent) int {
		return cmp.Compare(b.PctChange, a.PctChange)
	})
	slices.SortStableFunc(r.MAProximity, func(a, b MAProximityEvent) int {
		return cmp.Compare(math.Abs(a.PctOffset), math.Abs(b.PctOffset))
	})
	slices.SortStableFunc(r.BelowMA200, func(a, b BelowMA200Event) int {
		return cmp.Compare(a.PctBelow, b.PctBelow)
	})
	slices.SortStableFunc(r.NearHighs, func(a, b NearHighEvent) int {
		return cmp.Compare(math.Abs(a.PctFromHigh), math.Abs(b.PctFromHigh))
	})
	slices.SortStableFunc(r.Breakouts, func(a, b BreakoutEvent) int {
		if a.Direction != b.Direction {
			if a.Direction == Bullish {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.VolumeRatio, a.VolumeRatio)
	})
	slices.SortStableFunc(r.Earnings, func(a, b EarningsEvent) int {
		return cmp.Compare(a.DaysUntil, b.DaysUntil)
	})
}
