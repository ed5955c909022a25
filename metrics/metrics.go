// Package metrics 定义推荐引擎的 Prometheus 指标。
//
// 所有方法对 nil *Metrics 安全，未注入指标时直接跳过打点。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "movierec"

// Metrics 聚合引擎与 HTTP 层的指标。
type Metrics struct {
	BuildsTotal         *prometheus.CounterVec
	BuildDuration       prometheus.Histogram
	SimilarityPairs     prometheus.Gauge
	CacheLookupsTotal   *prometheus.CounterVec
	PredictionsTotal    *prometheus.CounterVec
	RecommendTotal      *prometheus.CounterVec
	NearestUserDuration prometheus.Histogram
	LocalWritesTotal    *prometheus.CounterVec

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
}

// NewMetrics 创建并注册指标；reg 为 nil 时只创建不注册（测试用）。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "similarity_builds_total",
				Help:      "Similarity matrix builds by origin",
			},
			[]string{"origin"}, // "computed" / "cache"
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "similarity_build_duration_seconds",
				Help:      "Similarity matrix build duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		SimilarityPairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "similarity_pairs",
				Help:      "Unordered item pairs retained in the similarity matrix",
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "similarity_cache_lookups_total",
				Help:      "Similarity cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		),
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Rating predictions by outcome",
			},
			[]string{"result"}, // "defined" / "undefined"
		),
		RecommendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendations_total",
				Help:      "Recommendation requests by source",
			},
			[]string{"source"}, // "cf" / "popular"
		),
		NearestUserDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "nearest_user_scan_duration_seconds",
				Help:      "Nearest real user scan duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		LocalWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "local_rating_writes_total",
				Help:      "Local rating store writes by operation and status",
			},
			[]string{"op", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.BuildsTotal,
			m.BuildDuration,
			m.SimilarityPairs,
			m.CacheLookupsTotal,
			m.PredictionsTotal,
			m.RecommendTotal,
			m.NearestUserDuration,
			m.LocalWritesTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsTotal,
		)
	}
	return m
}

// ObserveBuild 记录一次构建。
func (m *Metrics) ObserveBuild(origin string, d time.Duration, pairs int) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(origin).Inc()
	if origin == "computed" {
		m.BuildDuration.Observe(d.Seconds())
	}
	m.SimilarityPairs.Set(float64(pairs))
}

// CacheLookup 记录缓存命中/未命中。
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// Prediction 记录一次预测结果。
func (m *Metrics) Prediction(defined bool) {
	if m == nil {
		return
	}
	result := "undefined"
	if defined {
		result = "defined"
	}
	m.PredictionsTotal.WithLabelValues(result).Inc()
}

// Recommendation 记录一次推荐请求的来源。
func (m *Metrics) Recommendation(source string) {
	if m == nil {
		return
	}
	m.RecommendTotal.WithLabelValues(source).Inc()
}

// ObserveNearestUser 记录一次最近真实用户扫描耗时。
func (m *Metrics) ObserveNearestUser(d time.Duration) {
	if m == nil {
		return
	}
	m.NearestUserDuration.Observe(d.Seconds())
}

// LocalWrite 记录一次本地评分写入。
func (m *Metrics) LocalWrite(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LocalWritesTotal.WithLabelValues(op, status).Inc()
}
