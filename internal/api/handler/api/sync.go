// internal/api/handler/api/sync.go
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/core"
	"github.com/newthinker/stonks/internal/pipeline"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/newthinker/stonks/internal/task"
)

// SyncApp defines the interface needed from engine.Engine.
type SyncApp interface {
	Sync(ctx context.Context) *task.Task
	Refresh(ctx context.Context) *task.Task
	Phase() pipeline.Phase
	NeedsSignIn() bool
	LastSync() time.Time
	LastError() error
	Snapshot() *portfolio.Snapshot
}

// SyncHandler reports pipeline status and triggers syncs.
type SyncHandler struct {
	app SyncApp
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(app SyncApp) *SyncHandler {
	return &SyncHandler{app: app}
}

// PhaseView is the pipeline status.
type PhaseView struct {
	Phase        pipeline.Phase `json:"phase"`
	Busy         bool           `json:"busy"`
	NeedsSignIn  bool           `json:"needs_sign_in"`
	LastSync     *time.Time     `json:"last_sync,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	Generation   uint64         `json:"generation"`
	Completeness int            `json:"completeness"`
	Failed       []string       `json:"failed_symbols"`
}

// Phase returns the pipeline status.
func (h *SyncHandler) Phase(w http.ResponseWriter, r *http.Request) {
	phase := h.app.Phase()
	view := PhaseView{
		Phase:       phase,
		Busy:        phase.Busy(),
		NeedsSignIn: h.app.NeedsSignIn(),
		Failed:      []string{},
	}
	if last := h.app.LastSync(); !last.IsZero() {
		view.LastSync = &last
	}
	if err := h.app.LastError(); err != nil {
		view.LastError = err.Error()
	}
	if snap := h.app.Snapshot(); snap != nil {
		view.Generation = snap.Generation
		view.Completeness = snap.Completeness
		if failed := snap.Failed(); failed != nil {
			view.Failed = failed
		}
	}
	response.JSON(w, http.StatusOK, view)
}

// Trigger starts a sync. With refresh=true the cached portfolio is dropped
// first. Responds 409 while a sync is in flight.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.Fail(w, core.WrapError(core.ErrInvalidRequest, err))
			return
		}
		refresh = b
	}

	var t *task.Task
	if refresh {
		t = h.app.Refresh(r.Context())
	} else {
		t = h.app.Sync(r.Context())
	}
	if t == nil {
		response.Fail(w, core.ErrSyncInProgress)
		return
	}

	response.JSON(w, http.StatusAccepted, map[string]any{
		"started": true,
		"refresh": refresh,
		"phase":   h.app.Phase(),
	})
}
