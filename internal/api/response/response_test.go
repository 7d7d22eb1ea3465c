// internal/api/response/response_test.go
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/stonks/internal/core"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"hello": "world"}

	JSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected application/json content type")
	}

	var resp SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data == nil {
		t.Error("expected data in response")
	}
	if resp.Meta.Timestamp.IsZero() {
		t.Error("expected timestamp in meta")
	}
}

func TestError_WithCoreError(t *testing.T) {
	w := httptest.NewRecorder()
	err := core.ErrConfigInvalid

	Error(w, http.StatusBadRequest, err)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "CONFIG_INVALID" {
		t.Errorf("expected CONFIG_INVALID, got %s", resp.Error.Code)
	}
}

func TestError_WithStandardError(t *testing.T) {
	w := httptest.NewRecorder()
	err := core.WrapError(core.ErrNoData, nil)

	Error(w, http.StatusNotFound, err)

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "NO_DATA" {
		t.Errorf("expected NO_DATA, got %s", resp.Error.Code)
	}
}

func TestError_WithUnknownError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusInternalServerError, errors.New("boom"))

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", resp.Error.Code)
	}
	if resp.Error.Cause != "" {
		t.Errorf("internal causes must not leak, got %q", resp.Error.Cause)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrAuthExpired, http.StatusUnauthorized},
		{core.ErrUnauthorized, http.StatusUnauthorized},
		{core.WrapError(core.ErrInvalidRequest, errors.New("bad period")), http.StatusBadRequest},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrSymbolNotFound, http.StatusNotFound},
		{core.ErrSyncInProgress, http.StatusConflict},
		{core.ErrInsufficientData, http.StatusUnprocessableEntity},
		{core.ErrRateLimited, http.StatusTooManyRequests},
		{core.ErrProviderFailed, http.StatusBadGateway},
		{core.ErrNoData, http.StatusServiceUnavailable},
		{fmt.Errorf("loading: %w", core.ErrNoData), http.StatusServiceUnavailable},
		{core.ErrConfigInvalid, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFail(t *testing.T) {
	w := httptest.NewRecorder()

	Fail(w, core.WrapError(core.ErrSyncInProgress, nil))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "SYNC_IN_PROGRESS" {
		t.Errorf("expected SYNC_IN_PROGRESS, got %s", resp.Error.Code)
	}
}
