package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func symbolsOf[T any](rows []T, sym func(T) string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = sym(r)
	}
	return out
}

func stockSym(r StockRow) string { return r.Symbol }

func TestSort_Toggle(t *testing.T) {
	s := Sort{Column: ColValue}
	s = s.Toggle(ColValue)
	assert.Equal(t, Sort{Column: ColValue, Desc: true}, s)
	s = s.Toggle(ColValue)
	assert.Equal(t, Sort{Column: ColValue}, s)
	s = Sort{Column: ColValue, Desc: true}.Toggle(ColPL)
	assert.Equal(t, Sort{Column: ColPL}, s)
}

func TestStockRows(t *testing.T) {
	s := testSnapshot()
	s.Ranges["AAPL"] = 72.4
	s.Earnings["AAPL"] = EarningsInfo{DaysUntil: 2, Date: time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), Timing: "AMC"}

	rows := s.StockRows("A1", Sort{Column: ColSymbol})
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"AAPL", "JPM", "VOO"}, symbolsOf(rows, stockSym))

	aapl := rows[0]
	assert.Equal(t, "$2,000.00", aapl.ValueText)
	assert.Equal(t, "$500.00", aapl.PLText)
	assert.Equal(t, "33.33%", aapl.PLPctText)
	assert.InDelta(t, 2000.0/5500*100, aapl.Allocation, 1e-9)
	assert.Equal(t, "72%", aapl.RangeText)
	require.NotNil(t, aapl.Earnings)
	assert.Equal(t, "imminent", aapl.Earnings.Urgency)
	assert.Equal(t, "Earnings Jun 04, 2025 (AMC) - in 2 days", aapl.Earnings.Tooltip)

	jpm := rows[1]
	assert.Nil(t, jpm.PL)
	assert.Equal(t, NotAvailable, jpm.PLText)
	assert.Equal(t, NotAvailable, jpm.AvgCostText)
	assert.Equal(t, NotAvailable, jpm.RangeText)

	assert.True(t, rows[2].IsIndexFund)
}

func TestStockRows_NilSortsLastBothDirections(t *testing.T) {
	s := testSnapshot()

	asc := s.StockRows("A1", Sort{Column: ColPL})
	assert.Equal(t, []string{"VOO", "AAPL", "JPM"}, symbolsOf(asc, stockSym))

	desc := s.StockRows("A1", Sort{Column: ColPL, Desc: true})
	assert.Equal(t, []string{"AAPL", "VOO", "JPM"}, symbolsOf(desc, stockSym))
}

func TestOptionRows(t *testing.T) {
	s := testSnapshot()
	rows := s.OptionRows("A1", Sort{Column: ColValue, Desc: true})
	require.Len(t, rows, 2)
	assert.Equal(t, "TSLA", rows[0].Symbol)
	assert.Equal(t, Short, rows[0].Side)

	// stocks 5500 + |400| + |-600| = 6500
	assert.InDelta(t, 400.0/6500*100, rows[1].Weight, 1e-9)
	assert.True(t, rows[1].ITM)
	assert.Equal(t, "0.500", rows[1].DeltaText)
}

func TestSummary(t *testing.T) {
	s := testSnapshot()
	sum, ok := s.Summary("A1")
	require.True(t, ok)

	assert.InDelta(t, 5500.0+400-600, sum.Balance, 1e-9)
	assert.InDelta(t, 100.0, sum.DailyChange, 1e-9)
	assert.InDelta(t, 1.0101, sum.DailyChangePct, 1e-3)
	require.NotNil(t, sum.Alpha)
	assert.InDelta(t, 0.5101, *sum.Alpha, 1e-3)
	assert.True(t, sum.BeatingBenchmark)
	assert.Equal(t, "+$100.00 (+1.01%)", sum.DailyChangeText)
	assert.Equal(t, "+0.51% vs S&P", sum.BenchmarkText)

	_, ok = s.Summary("nope")
	assert.False(t, ok)
}

func TestSummary_NoBenchmark(t *testing.T) {
	s := testSnapshot()
	s.BenchmarkChangePct = nil
	sum, _ := s.Summary("A1")
	assert.Nil(t, sum.Alpha)
	assert.Equal(t, NotAvailable, sum.BenchmarkText)
}

func TestTreemap(t *testing.T) {
	s := testSnapshot()
	nodes := s.Treemap("A1")
	require.Len(t, nodes, 5)

	labels := symbolsOf(nodes, func(n TreemapNode) string { return n.Label })
	assert.Equal(t, []string{"AAPL", "VOO", "JPM", "AAPL (Opt)", "TSLA (Opt)"}, labels)
	assert.Nil(t, nodes[2].PLPct)
	assert.Equal(t, "rgb(128, 128, 128)", nodes[2].Color)
	assert.Equal(t, 600.0, nodes[4].Size)
}

func TestPLColor_Clamps(t *testing.T) {
	hundred, thousand := 100.0, 1000.0
	assert.Equal(t, PLColor(&hundred), PLColor(&thousand))
	assert.Equal(t, "rgb(27, 94, 32)", PLColor(&thousand))

	loss := -250.0
	assert.Equal(t, "rgb(127, 0, 0)", PLColor(&loss))

	zero := 0.0
	assert.Equal(t, "rgb(200, 230, 201)", PLColor(&zero))
}

func TestSectorExposure_FoldsOther(t *testing.T) {
	s := testSnapshot()
	s.Sectors["A1"] = map[string]float64{
		"Technology": 900, "Energy": 800, "Healthcare": 700, "Utilities": 600,
		"Industrials": 500, "Real Estate": 400, "Financial Services": 300, "Basic Materials": 200,
	}
	out := s.SectorExposure("A1")
	require.Len(t, out, 7)
	assert.Equal(t, "Technology", out[0].Sector)
	assert.Equal(t, "#1F55A5", out[0].Color)
	assert.Equal(t, "Other", out[6].Sector)
	assert.Equal(t, 500.0, out[6].Value)
	assert.Equal(t, "#6B7280", out[6].Color)

	var pct float64
	for _, sl := range out {
		pct += sl.Pct
	}
	assert.InDelta(t, 100.0, pct, 1e-9)

	assert.Nil(t, s.SectorExposure("missing"))
}

func TestDeltaExposure(t *testing.T) {
	s := testSnapshot()
	rows := s.DeltaExposure("A1")
	require.Len(t, rows, 2)

	// AAPL: 10 shares + 1*100*0.5 = 60; TSLA: -(2*100*-0.3) = 60 with no stock.
	for _, r := range rows {
		assert.InDelta(t, 60.0, r.NetDelta, 1e-9)
		assert.InDelta(t, 100.0, r.BarWidth, 1e-9)
		assert.True(t, r.Bullish)
	}

	assert.Nil(t, s.DeltaExposure("B2"), "accounts without options have no delta rows")
}

func TestPartition(t *testing.T) {
	s := testSnapshot()
	funds, individual := Partition(s.StockRows("A1", Sort{}), func(r StockRow) bool { return r.IsIndexFund })
	assert.Equal(t, []string{"VOO"}, symbolsOf(funds, stockSym))
	assert.Len(t, individual, 2)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", Money(1234.5))
	assert.Equal(t, "-$0.75", Money(-0.75))
	assert.Equal(t, "+$0.00", SignedMoney(0))
	assert.Equal(t, "-12.35%", SignedPercent(-12.345))
}
