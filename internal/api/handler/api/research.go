// internal/api/handler/api/research.go
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/research"
)

// ResearchService defines the interface needed from research.Service.
type ResearchService interface {
	Stats(ctx context.Context, symbol, period string) (*research.Stats, error)
}

// ResearchHandler serves single-symbol statistics.
type ResearchHandler struct {
	svc ResearchService
}

// NewResearchHandler creates a new research handler.
func NewResearchHandler(svc ResearchService) *ResearchHandler {
	return &ResearchHandler{svc: svc}
}

// Get returns the statistics for {symbol}. Query: period.
func (h *ResearchHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), chi.URLParam(r, "symbol"), r.URL.Query().Get("period"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}
