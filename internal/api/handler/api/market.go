// internal/api/handler/api/market.go
package api

import (
	"context"
	"net/http"

	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/market"
	"github.com/newthinker/stonks/internal/task"
)

// MarketService defines the interface needed from market.Service.
type MarketService interface {
	Indices(ctx context.Context) (*market.Overview, *task.Task, error)
}

// MarketHandler serves the index overview.
type MarketHandler struct {
	svc MarketService
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(svc MarketService) *MarketHandler {
	return &MarketHandler{svc: svc}
}

// Indices returns the overview. A stale copy is served while it refreshes.
func (h *MarketHandler) Indices(w http.ResponseWriter, r *http.Request) {
	overview, refresh, err := h.svc.Indices(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"overview":   overview,
		"refreshing": refresh != nil,
	})
}
