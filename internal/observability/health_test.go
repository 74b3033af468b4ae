package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHandleHealth(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealth()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version == "" {
		t.Error("version missing")
	}
}

func TestHandleReady_all_checks_pass(t *testing.T) {
	h := HandleReady(ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
		Store:             &stubChecker{},
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp ReadinessResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if resp.Checks["definitions"].Status != "ok" || resp.Checks["store"].Status != "ok" {
		t.Errorf("checks = %+v", resp.Checks)
	}
}

func TestHandleReady_definitions_not_loaded(t *testing.T) {
	h := HandleReady(ReadinessChecks{
		DefinitionsLoaded: func() bool { return false },
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp ReadinessResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
}

func TestHandleReady_store_failure(t *testing.T) {
	h := HandleReady(ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
		Store:             &stubChecker{err: errors.New("connection refused")},
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp ReadinessResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Checks["store"].Error != "connection refused" {
		t.Errorf("store check = %+v", resp.Checks["store"])
	}
}

func TestHandleReady_skips_nil_store(t *testing.T) {
	h := HandleReady(ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if _, ok := resp.Checks["store"]; ok {
		t.Error("store check ran without a checker")
	}
}
