package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/api/keys/{keyId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodDelete, "/api/keys/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("DELETE", "/api/keys/{keyId}", "204"))
	if got != 3 {
		t.Errorf("got %v requests, want 3", got)
	}
}

func TestRenderMetrics(t *testing.T) {
	m := New()
	m.ObserveRender("png", 100*time.Millisecond, nil)
	m.ObserveRender("png", time.Second, errors.New("boom"))
	m.SetRenderQueue(3)
	m.RenderRejected()

	if got := testutil.ToFloat64(m.RenderTotal.WithLabelValues("png", "ok")); got != 1 {
		t.Errorf("ok renders: got %v", got)
	}
	if got := testutil.ToFloat64(m.RenderTotal.WithLabelValues("png", "error")); got != 1 {
		t.Errorf("failed renders: got %v", got)
	}
	if got := testutil.ToFloat64(m.RenderQueue); got != 3 {
		t.Errorf("queue: got %v", got)
	}
	if got := testutil.ToFloat64(m.RenderRejectedTotal); got != 1 {
		t.Errorf("rejected: got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AuthFailure("token", "expired")
	m.ObserveRender("png", time.Second, nil)
	m.SetRenderQueue(1)
	m.RenderRejected()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := m.Middleware(next); h == nil {
		t.Fatal("expected passthrough handler")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.AuthFailure("api_key", "revoked")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `fragment_auth_failures_total{method="api_key",reason="revoked"} 1`) {
		t.Errorf("auth failure metric missing:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("runtime collector missing")
	}
}

func TestSamplerUpdatesGauges(t *testing.T) {
	m := New()
	calls := make(chan struct{}, 1)
	s := NewSampler(m, func(ctx context.Context) (Stats, error) {
		defer func() {
			select {
			case calls <- struct{}{}:
			default:
			}
		}()
		return Stats{Users: 7, DB: sql.DBStats{OpenConnections: 2, Idle: 1, InUse: 1}}, nil
	}, time.Hour, nil)

	s.Start()
	<-calls
	s.Shutdown()

	if got := testutil.ToFloat64(m.UsersTotal); got != 7 {
		t.Errorf("users: got %v", got)
	}
	if got := testutil.ToFloat64(m.DBConnectionsOpen); got != 2 {
		t.Errorf("open connections: got %v", got)
	}
}

func TestNewSamplerDisabled(t *testing.T) {
	if s := NewSampler(nil, nil, 0, nil); s != nil {
		t.Fatal("expected nil sampler without metrics")
	}
	var s *Sampler
	s.Start()
	s.Shutdown()
}
