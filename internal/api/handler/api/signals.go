// internal/api/handler/api/signals.go
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/signals"
)

// SignalsApp defines the interface needed from engine.Engine.
type SignalsApp interface {
	Signals(ctx context.Context) (*signals.Report, error)
}

// SignalsHandler serves the signal report.
type SignalsHandler struct {
	app SignalsApp
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(app SignalsApp) *SignalsHandler {
	return &SignalsHandler{app: app}
}

// List returns the report, optionally restricted by group (funds|individual).
func (h *SignalsHandler) List(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	switch group {
	case signals.GroupAll, signals.GroupIndexFunds, signals.GroupIndividual:
	default:
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, fmt.Errorf("unknown group %q", group)))
		return
	}

	report, err := h.app.Signals(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	filtered := report.Filter(group)

	response.JSON(w, http.StatusOK, map[string]any{
		"report": filtered,
		"counts": filtered.Counts(),
		"group":  group,
	})
}
