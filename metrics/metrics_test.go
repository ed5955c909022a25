package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBuild("computed", time.Second, 3)
	m.CacheLookup(true)
	m.Prediction(false)
	m.Recommendation("cf")
	m.ObserveNearestUser(time.Millisecond)
	m.LocalWrite("upsert", nil)

	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveBuild("computed", 2*time.Second, 42)
	m.ObserveBuild("cache", 0, 42)
	m.CacheLookup(false)
	m.CacheLookup(true)
	m.CacheLookup(true)
	m.Prediction(true)
	m.Recommendation("popular")
	m.LocalWrite("clear", errors.New("boom"))

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{name: "computed builds", c: m.BuildsTotal.WithLabelValues("computed"), want: 1},
		{name: "cache builds", c: m.BuildsTotal.WithLabelValues("cache"), want: 1},
		{name: "pairs", c: m.SimilarityPairs, want: 42},
		{name: "cache hits", c: m.CacheLookupsTotal.WithLabelValues("hit"), want: 2},
		{name: "cache misses", c: m.CacheLookupsTotal.WithLabelValues("miss"), want: 1},
		{name: "defined predictions", c: m.PredictionsTotal.WithLabelValues("defined"), want: 1},
		{name: "popular recommendations", c: m.RecommendTotal.WithLabelValues("popular"), want: 1},
		{name: "failed clears", c: m.LocalWritesTotal.WithLabelValues("clear", "error"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/v1/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/v1/items/1", "/v1/items/2"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/items/{id}", "404"))
	if got != 2 {
		t.Errorf("http_requests_total = %v, want 2", got)
	}
	if testutil.CollectAndCount(m.HTTPRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
}
