// internal/api/handler/api/portfolio.go
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/portfolio"
)

// PortfolioApp defines the interface needed from engine.Engine.
type PortfolioApp interface {
	Snapshot() *portfolio.Snapshot
}

// PortfolioHandler serves the per-account holdings views.
type PortfolioHandler struct {
	app PortfolioApp
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(app PortfolioApp) *PortfolioHandler {
	return &PortfolioHandler{app: app}
}

// AccountView is one entry of the account list.
type AccountView struct {
	portfolio.Account
	DailyChange    float64 `json:"daily_change"`
	DailyChangePct float64 `json:"daily_change_pct"`
	Stocks         int     `json:"stocks"`
	Options        int     `json:"options"`
}

// Accounts lists the accounts in brokerage order.
func (h *PortfolioHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	views := make([]AccountView, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		change, pct := a.DailyChange()
		views = append(views, AccountView{
			Account:        a,
			DailyChange:    change,
			DailyChangePct: pct,
			Stocks:         len(snap.Stocks[a.ID]),
			Options:        len(snap.Options[a.ID]),
		})
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"accounts":     views,
		"generation":   snap.Generation,
		"completeness": snap.Completeness,
		"fetched_at":   snap.FetchedAt,
	})
}

// Stocks returns the stock rows. Query: sort, desc, group (funds|individual).
func (h *PortfolioHandler) Stocks(w http.ResponseWriter, r *http.Request) {
	snap, id, ok := h.account(w, r)
	if !ok {
		return
	}
	order, err := parseSort(r, portfolio.ColValue, stockColumns)
	if err != nil {
		response.Fail(w, err)
		return
	}
	rows := snap.StockRows(id, order)

	switch group := r.URL.Query().Get("group"); group {
	case "":
	case "funds", "individual":
		funds, individual := portfolio.Partition(rows, func(row portfolio.StockRow) bool { return row.IsIndexFund })
		rows = individual
		if group == "funds" {
			rows = funds
		}
	default:
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("unknown group %q", group)))
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"sort":       order,
		"stocks":     rows,
	})
}

// Options returns the option rows. Query: sort, desc.
func (h *PortfolioHandler) Options(w http.ResponseWriter, r *http.Request) {
	snap, id, ok := h.account(w, r)
	if !ok {
		return
	}
	order, err := parseSort(r, portfolio.ColDTE, optionColumns)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"sort":       order,
		"options":    snap.OptionRows(id, order),
	})
}

// Summary returns the headline figures.
func (h *PortfolioHandler) Summary(w http.ResponseWriter, r *http.Request) {
	snap, id, ok := h.account(w, r)
	if !ok {
		return
	}
	sum, _ := snap.Summary(id)
	response.JSON(w, http.StatusOK, sum)
}

// Treemap returns the allocation treemap records.
func (h *PortfolioHandler) Treemap(w http.ResponseWriter, r *http.Request) {
	snap, id, ok := h.account(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"nodes":      snap.Treemap(id),
	})
}

// Sectors returns the sector exposure of individual stocks.
func (h *PortfolioHandler) Sectors(w http.ResponseWriter, r *http.Request) {
	snap, id, ok := h.account(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"enriched":   snap.Enriched(),
		"sectors":    snap.SectorExposure(id),
	})
}

// Delta returns the net delta exposure per optioned underlying.
func (h *PortfolioHandler) Delta(w http.ResponseWriter, r *http.Request) {
	snap, id, ok := h.account(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"delta":      snap.DeltaExposure(id),
	})
}

func (h *PortfolioHandler) snapshot(w http.ResponseWriter) (*portfolio.Snapshot, bool) {
	snap := h.app.Snapshot()
	if snap == nil {
		response.Fail(w, core.WrapError(core.ErrNoData, fmt.Errorf("portfolio not loaded yet")))
		return nil, false
	}
	return snap, true
}

func (h *PortfolioHandler) account(w http.ResponseWriter, r *http.Request) (*portfolio.Snapshot, string, bool) {
	snap, ok := h.snapshot(w)
	if !ok {
		return nil, "", false
	}
	id := chi.URLParam(r, "id")
	if _, ok := snap.Account(id); !ok {
		response.Fail(w, core.WrapError(core.ErrNotFound, fmt.Errorf("account %q", id)))
		return nil, "", false
	}
	return snap, id, true
}

var stockColumns = []string{
	portfolio.ColSymbol, portfolio.ColShares, portfolio.ColPrice, portfolio.ColValue,
	portfolio.ColCostBasis, portfolio.ColPL, portfolio.ColPLPct, portfolio.ColAllocation,
	portfolio.ColRange,
}

var optionColumns = []string{
	portfolio.ColSymbol, portfolio.ColStrike, portfolio.ColDTE, portfolio.ColValue,
	portfolio.ColPL, portfolio.ColPLPct, portfolio.ColDelta, portfolio.ColWeight,
}

func parseSort(r *http.Request, def string, allowed []string) (portfolio.Sort, error) {
	q := r.URL.Query()
	order := portfolio.Sort{Column: def}
	if col := q.Get("sort"); col != "" {
		valid := false
		for _, c := range allowed {
			if c == col {
				valid = true
				break
			}
		}
		if !valid {
			return order, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("unknown sort column %q", col))
		}
		order.Column = col
	}
	if desc := q.Get("desc"); desc != "" {
		b, err := strconv.ParseBool(desc)
		if err != nil {
			return order, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("desc: %w", err))
		}
		order.Desc = b
	}
	return order, nil
}
