package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/repository"
	"github.com/iliyamo/slotswap/internal/service"
)

func TestFail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		retryable  bool
		hideDetail bool
	}{
		{name: "not found", err: fmt.Errorf("slot x: %w", repository.ErrNotFound), wantStatus: http.StatusNotFound, wantKind: "not_found"},
		{name: "forbidden", err: service.ErrForbidden, wantStatus: http.StatusForbidden, wantKind: "forbidden"},
		{name: "invalid state", err: service.ErrInvalidState, wantStatus: http.StatusBadRequest, wantKind: "invalid_state"},
		{name: "not offerable", err: service.ErrSlotNotOfferable, wantStatus: http.StatusConflict, wantKind: "slot_not_offerable"},
		{name: "already resolved", err: service.ErrAlreadyResolved, wantStatus: http.StatusConflict, wantKind: "already_resolved"},
		{name: "conflict", err: repository.ErrConflict, wantStatus: http.StatusConflict, wantKind: "transaction_conflict", retryable: true},
		{name: "internal", err: fmt.Errorf("dial tcp 10.0.0.1:3306: refused"), wantStatus: http.StatusInternalServerError, wantKind: "internal", hideDetail: true},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			if err := fail(c, tt.err); err != nil {
				t.Fatalf("fail() returned %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %s", body["kind"], tt.wantKind)
			}
			if _, ok := body["retryable"]; ok != tt.retryable {
				t.Errorf("retryable present = %v, want %v", ok, tt.retryable)
			}
			if tt.hideDetail && body["error"] != "internal server error" {
				t.Errorf("internal error leaked detail: %v", body["error"])
			}
		})
	}
}
