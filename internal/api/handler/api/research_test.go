// internal/api/handler/api/research_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/market"
	"github.com/newthinker/stonks/internal/research"
	"github.com/newthinker/stonks/internal/task"
)

type fakeResearch struct {
	symbol, period string
	err            error
}

func (f *fakeResearch) Stats(ctx context.Context, symbol, period string) (*research.Stats, error) {
	f.symbol, f.period = symbol, period
	if f.err != nil {
		return nil, f.err
	}
	return &research.Stats{Symbol: symbol, Period: period}, nil
}

func TestResearchHandler_Get(t *testing.T) {
	svc := &fakeResearch{}
	h := NewResearchHandler(svc)

	req := httptest.NewRequest("GET", "/api/research/aapl?period=1y", nil)
	w := route("/api/research/{symbol}", h.Get, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.symbol != "aapl" || svc.period != "1y" {
		t.Errorf("unexpected request %q %q", svc.symbol, svc.period)
	}
}

func TestResearchHandler_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.WrapError(core.ErrInvalidRequest, nil), http.StatusBadRequest},
		{core.WrapError(core.ErrSymbolNotFound, nil), http.StatusNotFound},
		{core.WrapError(core.ErrNoData, nil), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := NewResearchHandler(&fakeResearch{err: tt.err})
		req := httptest.NewRequest("GET", "/api/research/ZZZZ", nil)
		w := route("/api/research/{symbol}", h.Get, req)
		if w.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, w.Code)
		}
	}
}

type fakeMarket struct {
	overview *market.Overview
	refresh  *task.Task
	err      error
}

func (f *fakeMarket) Indices(ctx context.Context) (*market.Overview, *task.Task, error) {
	return f.overview, f.refresh, f.err
}

func TestMarketHandler_Indices(t *testing.T) {
	h := NewMarketHandler(&fakeMarket{overview: &market.Overview{
		Indices: []market.Index{{Name: "S&P 500", Symbol: "^GSPC", Available: true, Price: 5600}},
	}})

	w := httptest.NewRecorder()
	h.Indices(w, httptest.NewRequest("GET", "/api/market/indices", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := decode(t, w)
	if data["refreshing"] != false {
		t.Error("fresh overview should not report a refresh")
	}
	indices := data["overview"].(map[string]any)["indices"].([]any)
	if len(indices) != 1 || indices[0].(map[string]any)["symbol"] != "^GSPC" {
		t.Errorf("unexpected indices %v", indices)
	}
}

func TestMarketHandler_StaleAndFailed(t *testing.T) {
	h := NewMarketHandler(&fakeMarket{overview: &market.Overview{}, refresh: task.Completed(nil)})
	w := httptest.NewRecorder()
	h.Indices(w, httptest.NewRequest("GET", "/api/market/indices", nil))
	if decode(t, w)["refreshing"] != true {
		t.Error("stale overview should report its refresh")
	}

	h = NewMarketHandler(&fakeMarket{err: core.WrapError(core.ErrProviderFailed, nil)})
	w = httptest.NewRecorder()
	h.Indices(w, httptest.NewRequest("GET", "/api/market/indices", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}
