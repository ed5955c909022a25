// Package server 是 movierec 的 HTTP 接口（chi）：物品查询、本地评分读写、预测、推荐与最近邻用户。
//
// 服务本身无状态：请求未携带 ratings 时使用本地评分存储，会话状态归调用方所有。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/dataset"
	"github.com/rushteam/movierec/metrics"
	"github.com/rushteam/movierec/pipeline"
	logpkg "github.com/rushteam/movierec/pkg/logger"
	"github.com/rushteam/movierec/recall"
)

// Catalog 是只读的评分与元数据视图，dataset.Repository 实现了它。
type Catalog interface {
	Movie(itemID int64) (dataset.Movie, bool)
	TopPopular(n int) []int64
	RandomSample(n int) []int64
	RatingCount(itemID int64) int
	ItemMean(itemID int64) (float64, bool)
	NumRatings() int
}

// Engine 是协同过滤引擎，recall.ItemCF 实现了它。
type Engine interface {
	Config() core.CFConfig
	State() recall.BuildState
	Builds() int64
	PredictK(ctx context.Context, ratings map[int64]float64, itemID int64, k int) (float64, error)
	FindNearestRealUser(ctx context.Context, ratings map[int64]float64) (recall.Neighbor, bool, error)
}

// LocalRatings 是本地用户评分存储，localstore.Store 实现了它。
type LocalRatings interface {
	Get(ctx context.Context) (map[int64]float64, error)
	Upsert(ctx context.Context, itemID int64, rating float64) error
	Clear(ctx context.Context) error
}

// Deps 是 Server 的依赖。Metrics、Gatherer、Logger 可为空。
type Deps struct {
	Catalog  Catalog
	Engine   Engine
	Local    LocalRatings
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// errorHandler 尝试处理一个领域错误，处理了返回 true。
type errorHandler func(w http.ResponseWriter, err error) bool

// Server 实现 HTTP API。
type Server struct {
	catalog  Catalog
	engine   Engine
	local    LocalRatings
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	errorHandlers []errorHandler
}

// New 创建 Server。
func New(deps Deps) *Server {
	s := &Server{
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		local:    deps.Local,
		pipeline: deps.Pipeline,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		logger:   deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.pipeline == nil {
		s.pipeline = &pipeline.Pipeline{}
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.errorHandlers = []errorHandler{
		codeHandler(core.IsNoPrediction, http.StatusNotFound, core.ErrorCodeNoPrediction),
		codeHandler(core.IsNotFound, http.StatusNotFound, core.ErrorCodeNotFound),
		codeHandler(core.IsInvalidInput, http.StatusBadRequest, core.ErrorCodeInvalidInput),
		codeHandler(core.IsPersistenceFailure, http.StatusInternalServerError, core.ErrorCodePersistenceFailure),
		codeHandler(core.IsDataUnavailable, http.StatusServiceUnavailable, core.ErrorCodeDataUnavailable),
		contextHandler,
	}
	return s
}

// Handler 返回挂好中间件与路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(s.metrics.Middleware())

	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/items/popular", s.PopularItems)
		r.Get("/items/random", s.RandomItems)
		r.Get("/items/{id}", s.GetItem)

		r.Get("/local/ratings", s.GetLocalRatings)
		r.Put("/local/ratings/{id}", s.PutLocalRating)
		r.Delete("/local/ratings", s.ClearLocalRatings)

		r.Post("/predict", s.Predict)
		r.Post("/recommend", s.Recommend)
		r.Post("/nearest-user", s.NearestUser)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// codeHandler 按错误代码匹配领域错误。
func codeHandler(match func(error) bool, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !match(err) {
			return false
		}
		msg := code
		if de := core.GetDomainError(err); de != nil && de.Message != "" {
			msg = de.Message
		}
		writeError(w, status, code, msg)
		return true
	}
}

func contextHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	writeError(w, http.StatusServiceUnavailable, core.ErrorCodeUnavailable, "request canceled or timed out")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, core.ErrorCodeInternalError, "internal error")
}

// jsonRecoverer 捕获 panic 并返回 JSON 格式的 500。
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					writeError(w, http.StatusInternalServerError, core.ErrorCodeInternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware 每个请求输出一行日志，并把带 request_id 的 logger 放入 context。
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
