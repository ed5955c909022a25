package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rushteam/movierec/config"
	"github.com/rushteam/movierec/dataset"
	"github.com/rushteam/movierec/localstore"
	"github.com/rushteam/movierec/metrics"
	logpkg "github.com/rushteam/movierec/pkg/logger"
	"github.com/rushteam/movierec/pkg/workpool"
	"github.com/rushteam/movierec/recall"
	"github.com/rushteam/movierec/server"
	"github.com/rushteam/movierec/simcache"
	"github.com/rushteam/movierec/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("MOVIEREC_CONFIG"), "path to YAML config (optional)")
	rebuild := flag.Bool("rebuild", false, "discard the similarity cache and rebuild on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *rebuild, logger); err != nil {
		logger.Error("movierec stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, rebuild bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting movierec",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Driver),
		zap.Int("min_common_users", cfg.CF.MinCommonUsers),
		zap.Int("top_k", cfg.CF.TopK),
		zap.Int("workers", cfg.CF.Workers),
	)

	repo := dataset.NewRepository(cfg.Dataset.UsersPath, cfg.Dataset.FilmsPath, dataset.WithLogger(logger))
	if err := repo.Load(ctx); err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	cache := simcache.New(st, cfg.Storage.CacheKey, logger)
	if rebuild {
		if err := cache.Invalidate(ctx); err != nil {
			logger.Warn("failed to invalidate similarity cache", zap.Error(err))
		}
	}

	cf := recall.NewItemCF(repo, cfg.CF,
		recall.WithCache(cache),
		recall.WithPool(workpool.New(cfg.CF.Workers)),
		recall.WithLogger(logger),
		recall.WithMetrics(m),
	)
	// 预热构建不随信号取消，关闭存储前等它写完缓存
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout())
		defer cancel()
		if err := cf.Wait(waitCtx); err != nil {
			logger.Warn("similarity build still running at shutdown", zap.Error(err))
		}
	}()

	factory := config.NewFactory(config.Dependencies{
		CF:           cf,
		Metadata:     repo,
		Popularity:   repo,
		Store:        st,
		BlacklistKey: cfg.Storage.BlacklistKey,
		Logger:       logger,
	})
	if err := config.ValidatePipeline(factory, cfg.Pipeline); err != nil {
		return fmt.Errorf("pipeline %s: %w", cfg.Pipeline.Name, err)
	}
	p, err := cfg.Pipeline.Build(factory)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	local := localstore.New(st, localstore.WithKey(cfg.Storage.LocalKey), localstore.WithLogger(logger))

	// 后台预热相似度矩阵；请求到来时若仍在构建则等待同一次构建
	go func() {
		if err := cf.Warm(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("similarity warmup failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: server.New(server.Deps{
			Catalog:  repo,
			Engine:   cf,
			Local:    local,
			Pipeline: p,
			Metrics:  m,
			Gatherer: reg,
			Logger:   logger,
		}).Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout(),
		WriteTimeout: cfg.HTTP.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
	return nil
}
