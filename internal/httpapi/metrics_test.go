package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrapeMetrics(t *testing.T) []byte {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rr.Code)
	}
	return rr.Body.Bytes()
}

func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := scrapeMetrics(t); !bytes.Contains(body, []byte("modelbridge_http_requests_total")) {
		t.Fatalf("expected modelbridge_http_requests_total in metrics")
	}
}

// Labels must use the chi route pattern, not the raw path.
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/models/tinyllama-42", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := scrapeMetrics(t)
	if !bytes.Contains(body, []byte(`path="/models/{id}"`)) {
		t.Fatalf("expected route pattern label in metrics")
	}
	if bytes.Contains(body, []byte("tinyllama-42")) {
		t.Fatalf("raw path leaked into metric labels")
	}
}

func TestIncrementUpstreamError(t *testing.T) {
	before := testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("unreachable"))
	IncrementUpstreamError("unreachable")
	IncrementUpstreamError("unreachable")
	if got := testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("unreachable")); got != before+2 {
		t.Fatalf("expected %v, got %v", before+2, got)
	}

	before = testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("unspecified"))
	IncrementUpstreamError("")
	if got := testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("unspecified")); got != before+1 {
		t.Fatalf("empty reason should count as unspecified: before=%v after=%v", before, got)
	}
}
