// Package marketdata defines the market-data contract used for enrichment
// and signal detection.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/newthinker/stonks/internal/core"
)

// History maps symbol to daily bars in ascending time order.
type History map[string][]core.OHLCV

// Info is the per-symbol descriptor.
type Info struct {
	Symbol    string
	Name      string
	QuoteType string
	// Sector is empty when the provider has none (funds, indices).
	Sector string
	Price  float64
	// High52 and Low52 are zero when the provider omits them.
	High52               float64
	Low52                float64
	TrailingPE           float64
	ForwardPE            float64
	FiftyDayAverage      float64
	TwoHundredDayAverage float64
}

// HasRange reports whether the descriptor carries a usable 52-week range.
func (i *Info) HasRange() bool {
	return i != nil && i.High52 > 0 && i.Low52 > 0 && i.Price > 0
}

// Earnings timing labels.
const (
	TimingBeforeOpen = "BMO"
	TimingAfterClose = "AMC"
)

// Earnings is the next scheduled earnings report.
type Earnings struct {
	Date time.Time
	// Timing is TimingBeforeOpen, TimingAfterClose or empty.
	Timing string
}

// Client is the market-data contract.
type Client interface {
	// GetHistory returns daily bars for every symbol in one logical call.
	// When some symbols fail, the successful ones are returned together
	// with a *BatchError naming the failures.
	GetHistory(ctx context.Context, symbols []string, period string) (History, error)
	// GetInfo returns the descriptor for one symbol.
	GetInfo(ctx context.Context, symbol string) (*Info, error)
	// GetEarnings returns the next earnings date, or nil when none is scheduled.
	GetEarnings(ctx context.Context, symbol string) (*Earnings, error)
}

// BatchError reports per-symbol failures of a batched call.
type BatchError struct {
	Failed map[string]error
}

func (e *BatchError) Error() string {
	syms := make([]string, 0, len(e.Failed))
	for s := range e.Failed {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return fmt.Sprintf("marketdata: %d symbol(s) failed: %s", len(syms), strings.Join(syms, ", "))
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// PeriodStart resolves a period such as "5d", "3mo" or "1y" to its start time.
func PeriodStart(now time.Time, period string) (time.Time, error) {
	p := strings.TrimSpace(strings.ToLower(period))
	var n int
	var unit string
	if _, err := fmt.Sscanf(p, "%d%s", &n, &unit); err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("marketdata: invalid period %q", period)
	}
	switch unit {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "wk":
		return now.AddDate(0, 0, -7*n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	case "y":
		return now.AddDate(-n, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("marketdata: invalid period %q", period)
}

var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// EarningsTiming classifies a report time as before open or after close,
// judged in exchange time.
func EarningsTiming(t time.Time) string {
	hour := t.In(newYork).Hour()
	switch {
	case hour < 12:
		return TimingBeforeOpen
	case hour >= 16:
		return TimingAfterClose
	}
	return ""
}

// DaysUntil counts calendar days from now to t in exchange time. It is
// negative once t has passed.
func DaysUntil(t, now time.Time) int {
	ty, tm, td := t.In(newYork).Date()
	ny, nm, nd := now.In(newYork).Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}
