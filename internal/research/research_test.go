package research

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/stonks/internal/cache"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/indicator"
	mdmock "github.com/newthinker/stonks/internal/marketdata/mock"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var researchNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newService(md *mdmock.Client) *Service {
	c := cache.New(cache.DefaultConfig(), cache.WithClock(func() time.Time { return researchNow }))
	s := NewService(md, c, time.Hour, nil)
	s.now = func() time.Time { return researchNow }
	return s
}

func TestService_Stats(t *testing.T) {
	md := mdmock.Demo(researchNow)
	s := newService(md)

	st, err := s.Stats(context.Background(), " aapl ", "")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", st.Symbol)
	assert.Equal(t, DefaultPeriod, st.Period)
	assert.False(t, st.Weekly)
	assert.Greater(t, st.Price, 0.0)
	assert.GreaterOrEqual(t, st.High52, st.Price)
	assert.GreaterOrEqual(t, st.RangePosition, 0.0)
	assert.LessOrEqual(t, st.RangePosition, 100.0)

	require.NotNil(t, st.RSI14)
	assert.GreaterOrEqual(t, *st.RSI14, 0.0)
	assert.LessOrEqual(t, *st.RSI14, 100.0)
	require.NotNil(t, st.Volatility)
	assert.Greater(t, *st.Volatility, 0.0)
	require.NotNil(t, st.PctFromMA50)
	require.NotNil(t, st.PctFromMA200)
	require.NotNil(t, st.MACD)
	assert.Contains(t, []string{"Positive", "Negative"}, st.MACDTrend)
	assert.NotEqual(t, portfolio.NotAvailable, st.MA200Text)

	require.NotEmpty(t, st.Chart)
	last := st.Chart[len(st.Chart)-1]
	require.NotNil(t, last.MA50)
	require.NotNil(t, last.MA200)
	first := st.Chart[0]
	assert.False(t, first.Time.Before(researchNow.AddDate(0, -6, 0)))
}

func TestService_StatsCached(t *testing.T) {
	md := mdmock.Demo(researchNow)
	s := newService(md)

	a, err := s.Stats(context.Background(), "MSFT", "1y")
	require.NoError(t, err)
	b, err := s.Stats(context.Background(), "msft", "1Y")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, md.Calls("GetHistory"))

	_, err = s.Stats(context.Background(), "MSFT", "3mo")
	require.NoError(t, err)
	assert.Equal(t, 2, md.Calls("GetHistory"))
}

func TestService_ShortHistory(t *testing.T) {
	md := mdmock.New()
	md.SetClock(func() time.Time { return researchNow })
	md.SetHistory("NEWCO", mdmock.Series("NEWCO", researchNow, 30, 20, 2, 1000))
	s := newService(md)

	st, err := s.Stats(context.Background(), "NEWCO", "1mo")
	require.NoError(t, err)
	assert.NotNil(t, st.RSI14)
	assert.Nil(t, st.PctFromMA50)
	assert.Nil(t, st.PctFromMA200)
	assert.Nil(t, st.MACD)
	assert.Empty(t, st.MACDTrend)
	assert.Equal(t, portfolio.NotAvailable, st.MA50Text)
	assert.Equal(t, portfolio.NotAvailable, st.MA200Text)
	for _, b := range st.Chart {
		assert.Nil(t, b.MA50)
	}
}

func TestService_Errors(t *testing.T) {
	md := mdmock.New()
	s := newService(md)

	_, err := s.Stats(context.Background(), "ZZZZ", "")
	assert.ErrorIs(t, err, core.ErrNoData)

	_, err = s.Stats(context.Background(), "  ", "")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = s.Stats(context.Background(), "AAPL", "7d")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
	assert.Equal(t, 1, md.Calls("GetHistory"), "invalid requests never reach the provider")
}

func TestService_WeeklyChart(t *testing.T) {
	md := mdmock.Demo(researchNow)
	s := newService(md)

	st, err := s.Stats(context.Background(), "SPY", "2y")
	require.NoError(t, err)
	assert.True(t, st.Weekly)

	daily := 0
	for _, b := range md.History("SPY") {
		if !b.Time.Before(researchNow.AddDate(-2, 0, 0)) {
			daily++
		}
	}
	assert.Less(t, len(st.Chart), daily)
	for i := 1; i < len(st.Chart); i++ {
		y0, w0 := st.Chart[i-1].Time.ISOWeek()
		y1, w1 := st.Chart[i].Time.ISOWeek()
		assert.False(t, y0 == y1 && w0 == w1, "one bar per week")
	}
}

func TestChart_MovingAverageAlignment(t *testing.T) {
	bars := mdmock.Series("X", researchNow, 60, 10, 0, 1)
	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = float64(i + 1)
		bars[i].Close = closes[i]
	}

	out := chart(bars, closes, time.Time{})
	require.Len(t, out, 60)
	assert.Nil(t, out[48].MA50)
	require.NotNil(t, out[49].MA50)
	assert.InDelta(t, 25.5, *out[49].MA50, 1e-9)
	want, _ := indicator.LastSMA(closes, 50, 0)
	assert.InDelta(t, want, *out[59].MA50, 1e-9)
	assert.Nil(t, out[59].MA200)
}

func TestWeekly(t *testing.T) {
	mon := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	ma := 5.0
	daily := []ChartBar{
		{Time: mon, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Time: mon.AddDate(0, 0, 1), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 200},
		{Time: mon.AddDate(0, 0, 7), Open: 11, High: 11.2, Low: 8, Close: 9, Volume: 50, MA50: &ma},
	}
	out := weekly(daily)
	require.Len(t, out, 2)
	assert.Equal(t, ChartBar{Time: mon, Open: 10, High: 12, Low: 9, Close: 11.5, Volume: 300}, out[0])
	assert.Equal(t, 9.0, out[1].Close)
	assert.Same(t, &ma, out[1].MA50)
}
