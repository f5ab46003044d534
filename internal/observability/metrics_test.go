package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/peterpeto56u-code/MarcoERP-sub007/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("ledger:integrity", "schedule").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `posting_jobs_total{job="ledger:integrity",status="success",trigger="schedule"} 1`) {
		t.Fatalf("expected body to contain posting_jobs_total, got: %s", body)
	}
}

func TestObservePosting(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("sales_invoice", "post", "ok", 20*time.Millisecond)
	metrics.ObservePosting("sales_invoice", "post", "concurrency_conflict", time.Millisecond)

	body := scrape(t, metrics)
	for _, want := range []string{
		`posting_operations_total{family="sales_invoice",operation="post",outcome="ok"} 1`,
		`posting_operations_total{family="sales_invoice",operation="post",outcome="concurrency_conflict"} 1`,
		`posting_operation_duration_seconds_count{family="sales_invoice",operation="post"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s, got: %s", want, body)
		}
	}

	var nilMetrics *Metrics
	nilMetrics.ObservePosting("sales_invoice", "post", "ok", time.Millisecond)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
