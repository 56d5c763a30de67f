package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giygas/patient-records/config"
	"github.com/giygas/patient-records/data"
	"github.com/giygas/patient-records/handlers"
	"github.com/giygas/patient-records/health"
	"github.com/giygas/patient-records/records"
)

type idleScheduler struct{}

func (idleScheduler) Start() error                 { return nil }
func (idleScheduler) Stop()                        {}
func (idleScheduler) RunNow(context.Context) error { return nil }
func (idleScheduler) NextRun() time.Time           { return time.Time{} }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:           "8030",
		Address:        "127.0.0.1",
		MaxRequestBody: 1 << 20,
		MaxHeaderSize:  1 << 20,
	}
	store := data.NewDataContainer()
	h := handlers.NewHTTPHandler(store, records.NewStore(t.TempDir()), idleScheduler{},
		health.NewHealthChecker(store, time.Hour, nil), "combined")
	return NewServer(cfg, h)
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)
	if s.server.Addr != "127.0.0.1:8030" {
		t.Errorf("Addr = %q, want 127.0.0.1:8030", s.server.Addr)
	}
	if s.server.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout should be set")
	}
}

func TestServerRoutes(t *testing.T) {
	h := newTestServer(t).Handler()

	testCases := []struct {
		method string
		path   string
		want   int
	}{
		// No combine run has completed yet.
		{http.MethodGet, "/health", http.StatusServiceUnavailable},
		{http.MethodGet, "/dataset.csv", http.StatusServiceUnavailable},
		{http.MethodGet, "/summary", http.StatusServiceUnavailable},
		{http.MethodGet, "/records/missing", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodDelete, "/refresh", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.RemoteAddr = "10.1.1.1"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rr.Code)
		}
		if rr.Header().Get("X-RateLimit-Limit") == "" {
			t.Errorf("%s %s: missing rate limit headers", tc.method, tc.path)
		}
	}
}

func TestServerPostRecord(t *testing.T) {
	h := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{"id": "P9", "cycles": []}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/records/P9", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 reading the saved record, got %d", rr.Code)
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
