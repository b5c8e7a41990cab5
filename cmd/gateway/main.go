package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/routefabric/cluster-gateway/internal/auth"
	"github.com/routefabric/cluster-gateway/internal/cache"
	"github.com/routefabric/cluster-gateway/internal/catalog"
	"github.com/routefabric/cluster-gateway/internal/config"
	"github.com/routefabric/cluster-gateway/internal/gateway"
	"github.com/routefabric/cluster-gateway/internal/relay"
	"github.com/routefabric/cluster-gateway/internal/resolver"
	"github.com/routefabric/cluster-gateway/internal/store"
	"github.com/routefabric/cluster-gateway/internal/telemetry"
	"github.com/routefabric/cluster-gateway/internal/usage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configPath, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	loader.OnReload(func() {
		c := loader.Config()
		logger.Info("configuration reloaded",
			"engine_url", c.Engine.BaseURL,
			"catalog_fetch_timeout", c.Catalog.FetchTimeout,
			"log_level", c.Telemetry.LogLevel)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	cfg := loader.Config()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but resolution will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Dial the cache backend once; a nil client means degraded, uncached mode.
	rdb := cache.Connect(context.Background(), cache.ConnectConfig{
		Addr:        cfg.Cache.Addr,
		Password:    cfg.Cache.Password,
		DB:          cfg.Cache.DB,
		PoolSize:    cfg.Cache.PoolSize,
		DialTimeout: cfg.Cache.DialTimeout,
		MaxElapsed:  cfg.Cache.ConnectBackoff,
	}, logger)
	sharedCache := cache.New(rdb, logger)

	credKey, err := cfg.Secrets.DecodeCredentialKey()
	if err != nil {
		logger.Error("invalid credential key", "error", err)
		os.Exit(1)
	}
	cipher, err := resolver.NewCipher(credKey)
	if err != nil {
		logger.Error("failed to initialize credential cipher", "error", err)
		os.Exit(1)
	}

	pg := store.NewPostgres(dbPool)
	res := resolver.New(pg, sharedCache, cipher, logger)
	agg := catalog.New(catalog.NewHTTPModelFetcher(&http.Client{Timeout: cfg.Catalog.FetchTimeout}),
		sharedCache, cfg.Catalog.FetchTimeout, logger)
	rel := relay.New(relay.DefaultClient(cfg.Engine.HeaderTimeout), cfg.Engine.BaseURL, cfg.Engine.ServiceToken, logger)
	recorder := usage.NewRecorder(pg, cfg.Usage.QueueSize, logger)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer, func() float64 {
		return float64(recorder.Depth())
	})
	recorder.OnDrop(metrics.UsageQueueDropsTotal.Inc)
	sharedCache.OnOp(func(key, outcome string) {
		tier, _, _ := strings.Cut(key, ":")
		metrics.CacheOpsTotal.WithLabelValues(tier, outcome).Inc()
	})
	agg.OnFetchFailure(func(provider string) {
		metrics.ProviderFetchFailed.WithLabelValues(provider).Inc()
	})

	verifier := auth.NewHTTPVerifier(&http.Client{Timeout: cfg.Identity.Timeout}, cfg.Identity.BaseURL, sharedCache)
	handler := gateway.NewHandler(res, agg, rel, recorder, metrics)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		r.Post("/v1/projects/{projectID}/clusters/{clusterName}/completions", handler.Completions)
		r.Get("/v1/projects/{projectID}/clusters/{clusterName}/models", handler.ListModels)
	})

	// Metrics on a separate listener so the public surface stays minimal.
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	// Drain pending usage records before exiting; accounting outlives
	// the listener.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Usage.DrainTimeout)
	defer drainCancel()
	if err := recorder.Close(drainCtx); err != nil {
		logger.Error("usage recorder drain incomplete", "error", err)
	}

	if rdb != nil {
		rdb.Close()
	}
	logger.Info("gateway stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
