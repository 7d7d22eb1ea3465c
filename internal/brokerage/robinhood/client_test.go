package robinhood

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/stonks/internal/brokerage"
	"github.com/newthinker/stonks/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "tok", Timeout: 5 * time.Second}, nil), srv
}

func TestListAccounts_PaginatesAndFiltersInactive(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "true", r.URL.Query().Get("default_to_all_accounts"))
			fmt.Fprintf(w, `{"next": "%s/accounts/?cursor=2", "results": [
				{"account_number": "5QR11234", "nickname": "", "brokerage_account_type": "individual", "state": "active"}
			]}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"next": null, "results": [
			{"account_number": "9XY95678", "nickname": "roth", "brokerage_account_type": "ira_roth", "state": "active"},
			{"account_number": "0000DEAD", "nickname": "", "brokerage_account_type": "individual", "state": "deactivated"}
		]}`)
	})

	c, srv := newTestServer(t, mux)
	srvURL = srv.URL

	accounts, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "5QR11234", accounts[0].ID)
	assert.Equal(t, "individual", accounts[0].Type)
	assert.Equal(t, "roth", accounts[1].Nickname)
}

func TestGet_UnauthorizedMapsToAuthExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail": "Incorrect authentication credentials."}`)
	})
	c, _ := newTestServer(t, mux)

	_, err := c.ListAccounts(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAuthExpired))
	assert.True(t, brokerage.IsAuthError(err))
}

func TestGet_ThrottleMapsToRateLimitError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolios/ACC1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"detail": "Request was throttled. Expected available in 12 seconds."}`)
	})
	c, _ := newTestServer(t, mux)

	_, err := c.GetPortfolioProfile(context.Background(), "ACC1")
	require.Error(t, err)

	var rl *brokerage.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 12*time.Second, rl.RetryAfter)
	assert.True(t, errors.Is(err, core.ErrRateLimited))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, retryAfter("7", ""))
	assert.Equal(t, 3*time.Second, retryAfter("", "Expected available in 3 seconds."))
	assert.Equal(t, time.Duration(0), retryAfter("", "slow down"))
}

func TestGetPortfolioProfile_NullableFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolios/ACC1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"equity": "1000.50", "extended_hours_equity": null,
			"equity_previous_close": "990.00", "adjusted_equity_previous_close": "991.25"}`)
	})
	c, _ := newTestServer(t, mux)

	p, err := c.GetPortfolioProfile(context.Background(), "ACC1")
	require.NoError(t, err)
	assert.InDelta(t, 1000.50, p.Equity, 1e-9)
	assert.Equal(t, 0.0, p.ExtendedHoursEquity)
	assert.InDelta(t, 991.25, p.AdjustedEquityPreviousClose, 1e-9)
}

func TestGetOpenStockPositions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/positions/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ACC1", r.URL.Query().Get("account_number"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"next": null, "results": [
			{"instrument": "https://api.robinhood.com/instruments/abc/", "quantity": "10.5000",
			 "average_buy_price": null, "pending_average_buy_price": "12.34"}
		]}`)
	})
	c, _ := newTestServer(t, mux)

	holdings, err := c.GetOpenStockPositions(context.Background(), "ACC1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.InDelta(t, 10.5, holdings[0].Quantity, 1e-9)
	assert.Equal(t, 0.0, holdings[0].AverageBuyPrice)
	assert.InDelta(t, 12.34, holdings[0].PendingAverageBuyPrice, 1e-9)
}

func TestGetQuotes_PrefersExtendedHoursAndSkipsNulls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/marketdata/quotes/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL,MSFT,ZZZZ", r.URL.Query().Get("symbols"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results": [
			{"symbol": "AAPL", "last_trade_price": "190.00", "last_extended_hours_trade_price": "191.50"},
			{"symbol": "MSFT", "last_trade_price": "410.00", "last_extended_hours_trade_price": null},
			null
		]}`)
	})
	c, _ := newTestServer(t, mux)

	prices, err := c.GetQuotes(context.Background(), []string{"AAPL", "MSFT", "ZZZZ"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 191.5, "MSFT": 410}, prices)
}

func TestGetQuotes_EmptyInputSkipsRequest(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	prices, err := c.GetQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestGetOptionData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/marketdata/options/opt1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"mark_price": "1.20", "adjusted_mark_price": "1.25", "delta": "-0.4100"}`)
	})
	mux.HandleFunc("/options/instruments/opt1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"strike_price": "150.0000", "expiration_date": "2024-06-21", "type": "put"}`)
	})
	c, _ := newTestServer(t, mux)

	md, err := c.GetOptionMarketData(context.Background(), "opt1")
	require.NoError(t, err)
	assert.InDelta(t, 1.25, md.AdjustedMarkPrice, 1e-9)
	assert.InDelta(t, -0.41, md.Delta, 1e-9)

	inst, err := c.GetOptionInstrumentData(context.Background(), "opt1")
	require.NoError(t, err)
	assert.InDelta(t, 150, inst.Strike, 1e-9)
	assert.Equal(t, "put", inst.Type)
	assert.Equal(t, time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), inst.Expiration)
}

func TestResolveSymbol_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instruments/missing/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c, srv := newTestServer(t, mux)

	_, err := c.ResolveSymbol(context.Background(), srv.URL+"/instruments/missing/")
	assert.ErrorIs(t, err, brokerage.ErrInstrumentNotFound)
}
