package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
)

func newTestRouter(t *testing.T, token string) (chi.Router, *Orchestrator) {
	t.Helper()
	ctx := context.Background()
	o, err := New(ctx, minimalConfig(t), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	api := NewAPI(log.Nop(), o, token)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r, o
}

func TestHandleHealthReportsRunningServices(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Healthy {
		t.Fatalf("expected healthy=true, got response %+v", resp)
	}
	if len(resp.Services) == 0 {
		t.Fatalf("expected at least one service entry")
	}
}

func TestHandleSessionReturnsCurrentSession(t *testing.T) {
	r, o := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["session_id"] != o.Sessions.Current().ID {
		t.Errorf("session_id = %v, want %v", resp["session_id"], o.Sessions.Current().ID)
	}
}

func TestHandleSessionNotFoundAfterShutdown(t *testing.T) {
	r, o := newTestRouter(t, "")
	if err := o.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleInvokeToolRequiresBearerTokenWhenConfigured(t *testing.T) {
	r, _ := newTestRouter(t, "secret-token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/get_status", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/tools/get_status", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("status with correct token = %d, want not 401", rec.Code)
	}
}

func TestHandleInvokeToolUnknownToolReturnsNotFound(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/no_such_tool", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}

func TestHandleInvokeToolMalformedBodyReturnsBadRequest(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/get_status", http.NoBody)
	req.Body = http.NoBody
	req.ContentLength = 3
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
