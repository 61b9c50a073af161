package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/bootstrap"
	"github.com/BarkinBalci/viewer-analytics-service/internal/cache"
	"github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/forecast"
	"github.com/BarkinBalci/viewer-analytics-service/internal/handler"
	"github.com/BarkinBalci/viewer-analytics-service/internal/logger"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/service"
	"github.com/BarkinBalci/viewer-analytics-service/internal/tracing"
)

const (
	serviceName     = "viewer-api"
	cacheKeyPrefix  = "viewer:query:"
	shutdownTimeout = 10 * time.Second
)

// @title Viewer Analytics Service API
// @version 1.0
// @description Live engagement analytics over the viewer event log
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, serviceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort),
		zap.String("event_log", cfg.EventLog.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	tp, err := tracing.NewProvider(tracing.FromConfig(serviceName, cfg), log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown tracing", zap.Error(err))
		}
	}()

	// Initialize event log; the consumer owns the schema
	repo, err := bootstrap.OpenEventLog(ctx, cfg, false, log)
	if err != nil {
		log.Fatal("Failed to open event log", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("Failed to close event log", zap.Error(err))
		}
	}()

	// Initialize publisher
	publisher, err := bootstrap.OpenPublisher(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close publisher", zap.Error(err))
		}
	}()

	// Initialize query cache
	queryCache, closeCache := newCache(ctx, cfg.Valkey, log)
	defer closeCache()

	// Initialize forecaster
	var forecaster forecast.Forecaster
	if cfg.Forecast.Enabled {
		forecaster = forecast.NewLinear()
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	queryMetrics := metrics.NewQuery()
	if err := queryMetrics.Register(registry); err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Initialize services
	eventService := service.NewEventService(publisher, log)
	analyticsService := service.NewAnalyticsService(repo, queryCache, forecaster, queryMetrics, log)

	// Initialize handler
	h := handler.NewHandler(eventService, analyticsService, log,
		handler.WithCORSOrigins(handler.ParseOrigins(cfg.Service.CORSOrigins)),
		handler.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		handler.WithReadiness(repo.Ping))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Service.APIPort),
		Handler:           otelhttp.NewHandler(h, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("API server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown API server", zap.Error(err))
	}
}

// newCache connects to Valkey when configured and falls back to an in-process
// cache when it is not configured or unreachable.
func newCache(ctx context.Context, cfg config.Valkey, log *zap.Logger) (cache.Cache, func()) {
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	if !cfg.Enabled() {
		log.Info("Using in-memory query cache", zap.Duration("ttl", ttl))
		return cache.NewMemory(ttl), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr()})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Valkey unreachable, using in-memory query cache",
			zap.String("addr", cfg.Addr()),
			zap.Error(err))
		_ = client.Close()
		return cache.NewMemory(ttl), func() {}
	}

	log.Info("Using Valkey query cache", zap.String("addr", cfg.Addr()), zap.Duration("ttl", ttl))
	return cache.NewValkey(client, cacheKeyPrefix, ttl), func() {
		if err := client.Close(); err != nil {
			log.Error("Failed to close Valkey client", zap.Error(err))
		}
	}
}
