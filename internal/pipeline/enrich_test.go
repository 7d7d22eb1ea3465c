package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/marketdata"
	mdmock "github.com/newthinker/stonks/internal/marketdata/mock"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var enrichNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newTestEnricher(md marketdata.Client) *Enricher {
	e := NewEnricher(md, nil, 4, 4)
	e.now = func() time.Time { return enrichNow }
	return e
}

func newMarket() *mdmock.Client {
	md := mdmock.New()
	md.SetClock(func() time.Time { return enrichNow })
	return md
}

func TestEnrich_RangeFromInfo(t *testing.T) {
	md := newMarket()
	md.SetInfo(marketdata.Info{Symbol: "AAPL", Sector: "Technology", Price: 150, Low52: 100, High52: 200})

	res := newTestEnricher(md).Enrich(context.Background(), []string{"AAPL"})

	assert.Equal(t, portfolio.OutcomeOK, res.Outcomes["AAPL"])
	assert.InDelta(t, 50, res.Ranges["AAPL"], 1e-9)
	assert.Equal(t, "Technology", res.Sectors["AAPL"])
	assert.Equal(t, 0, md.Calls("GetHistory"))
}

func TestEnrich_FundUsesHistory(t *testing.T) {
	md := newMarket()
	md.SetHistory("VOO", mdmock.Series("VOO", enrichNow, 260, 400, 20, 1000))

	res := newTestEnricher(md).Enrich(context.Background(), []string{"VOO"})

	require.Equal(t, portfolio.OutcomeOK, res.Outcomes["VOO"])
	assert.GreaterOrEqual(t, res.Ranges["VOO"], 0.0)
	assert.LessOrEqual(t, res.Ranges["VOO"], 100.0)
	assert.Equal(t, 0, md.SymbolCalls("GetInfo", "VOO"))
	assert.Equal(t, 0, md.SymbolCalls("GetEarnings", "VOO"))
}

func TestEnrich_MissingRangeFallsBackToHistory(t *testing.T) {
	md := newMarket()
	md.SetInfo(marketdata.Info{Symbol: "JPM", Sector: "Financial Services", Price: 100})
	md.SetInfo(marketdata.Info{Symbol: "XOM", Sector: "Energy", Price: 100})
	md.SetHistory("JPM", mdmock.Series("JPM", enrichNow, 260, 100, 10, 1000))
	md.SetHistory("XOM", mdmock.Series("XOM", enrichNow, 260, 100, 10, 1000))

	res := newTestEnricher(md).Enrich(context.Background(), []string{"JPM", "XOM"})

	assert.Equal(t, portfolio.OutcomeOK, res.Outcomes["JPM"])
	assert.Equal(t, portfolio.OutcomeOK, res.Outcomes["XOM"])
	assert.Contains(t, res.Ranges, "JPM")
	assert.Equal(t, "Energy", res.Sectors["XOM"])
	assert.Equal(t, 1, md.Calls("GetHistory"), "fallbacks share one batch")
}

func TestEnrich_HistoryFailureIsRetryable(t *testing.T) {
	md := newMarket()
	md.SetInfo(marketdata.Info{Symbol: "JPM", Sector: "Financial Services"})
	md.SetHistory("JPM", mdmock.Series("JPM", enrichNow, 260, 100, 10, 1000))
	md.FailHistory("JPM", -1, core.ErrProviderFailed)

	res := newTestEnricher(md).Enrich(context.Background(), []string{"JPM"})

	assert.Equal(t, portfolio.OutcomeFailed, res.Outcomes["JPM"])
	assert.NotContains(t, res.Ranges, "JPM")
	assert.Equal(t, "Financial Services", res.Sectors["JPM"])
}

func TestEnrich_UnknownSymbolIsUnavailable(t *testing.T) {
	md := newMarket()

	res := newTestEnricher(md).Enrich(context.Background(), []string{"ZZZZ"})

	assert.Equal(t, portfolio.OutcomeUnavailable, res.Outcomes["ZZZZ"])
}

func TestEnrich_FlatHistoryIsUnavailable(t *testing.T) {
	md := newMarket()
	md.SetInfo(marketdata.Info{Symbol: "FLAT", Sector: "Utilities"})
	bars := mdmock.Series("FLAT", enrichNow, 30, 10, 0, 1000)
	for i := range bars {
		bars[i].High, bars[i].Low = 10, 10
	}
	md.SetHistory("FLAT", bars)

	res := newTestEnricher(md).Enrich(context.Background(), []string{"FLAT"})

	assert.Equal(t, portfolio.OutcomeUnavailable, res.Outcomes["FLAT"])
}

func TestEnrich_InfoFailureStaysFailed(t *testing.T) {
	md := newMarket()
	md.SetInfo(marketdata.Info{Symbol: "AAPL", Sector: "Technology", Price: 150, Low52: 100, High52: 200})
	md.SetHistory("AAPL", mdmock.Series("AAPL", enrichNow, 260, 150, 20, 1000))
	md.FailInfo("AAPL", 1, core.ErrProviderFailed)

	e := newTestEnricher(md)
	res := e.Enrich(context.Background(), []string{"AAPL"})

	assert.Equal(t, portfolio.OutcomeFailed, res.Outcomes["AAPL"])
	assert.Contains(t, res.Ranges, "AAPL", "range recovered from history")
	assert.NotContains(t, res.Sectors, "AAPL")

	res = e.Enrich(context.Background(), []string{"AAPL"})
	assert.Equal(t, portfolio.OutcomeOK, res.Outcomes["AAPL"])
	assert.Equal(t, "Technology", res.Sectors["AAPL"])
}

func TestEnrich_Earnings(t *testing.T) {
	md := newMarket()
	md.SetInfo(marketdata.Info{Symbol: "AAPL", Sector: "Technology", Price: 150, Low52: 100, High52: 200})
	md.SetInfo(marketdata.Info{Symbol: "OPENW", Price: 1, Low52: 0.5, High52: 2})
	md.SetEarnings("AAPL", marketdata.Earnings{Date: enrichNow.Add(48 * time.Hour), Timing: marketdata.TimingAfterClose})
	md.SetEarnings("OPENW", marketdata.Earnings{Date: enrichNow.Add(24 * time.Hour)})
	md.FailEarnings("MSFT", -1, core.ErrProviderFailed)
	md.SetInfo(marketdata.Info{Symbol: "MSFT", Sector: "Technology", Price: 300, Low52: 200, High52: 400})

	res := newTestEnricher(md).Enrich(context.Background(), []string{"AAPL", "MSFT", "OPENW"})

	require.Contains(t, res.Earnings, "AAPL")
	assert.Equal(t, 2, res.Earnings["AAPL"].DaysUntil)
	assert.Equal(t, marketdata.TimingAfterClose, res.Earnings["AAPL"].Timing)
	assert.NotContains(t, res.Earnings, "OPENW")
	assert.Equal(t, 0, md.SymbolCalls("GetEarnings", "OPENW"))

	assert.NotContains(t, res.Earnings, "MSFT")
	assert.Equal(t, portfolio.OutcomeOK, res.Outcomes["MSFT"], "earnings failures do not affect outcomes")
}

func TestEnrich_Empty(t *testing.T) {
	md := newMarket()
	res := newTestEnricher(md).Enrich(context.Background(), nil)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, 0, md.Calls("GetHistory"))
}

func TestEnrichment_Apply(t *testing.T) {
	s := portfolio.NewSnapshot(1, enrichNow, []portfolio.AccountResult{{
		Account: portfolio.Account{ID: "A1"},
		Stocks: []portfolio.StockPosition{
			portfolio.NewStockPosition("AAPL", 10, 200, 150),
			portfolio.NewStockPosition("JPM", 10, 100, 90),
			portfolio.NewStockPosition("VOO", 1, 500, 400),
		},
	}}, nil)
	s.Ranges["JPM"] = 40
	s.Outcomes["JPM"] = portfolio.OutcomeOK

	enr := &Enrichment{
		Sectors:  map[string]string{"AAPL": "Technology"},
		Ranges:   map[string]float64{"AAPL": 75},
		Earnings: map[string]portfolio.EarningsInfo{},
		Outcomes: map[string]portfolio.Outcome{"AAPL": portfolio.OutcomeOK},
	}
	enr.Apply(s)

	assert.Equal(t, 75.0, s.Ranges["AAPL"])
	assert.Equal(t, 40.0, s.Ranges["JPM"], "untouched symbols keep their values")
	assert.Equal(t, portfolio.OutcomeOK, s.Outcomes["JPM"])
	assert.Equal(t, map[string]float64{"Technology": 2000, "Unknown": 1000}, s.Sectors["A1"])
}
