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
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/bootstrap"
	"github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/consumer"
	"github.com/BarkinBalci/viewer-analytics-service/internal/logger"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/tracing"
)

const serviceName = "viewer-consumer"

func main() {
	// Load configuration
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

	log.Info("Starting consumer service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("source", cfg.Source.Driver),
		zap.String("event_log", cfg.EventLog.Driver),
		zap.Int("batch_size", cfg.Consumer.BatchSize),
		zap.Duration("flush_interval", cfg.Consumer.FlushInterval()))

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

	// Initialize event log (create tables if not exist)
	repo, err := bootstrap.OpenEventLog(ctx, cfg, true, log)
	if err != nil {
		log.Fatal("Failed to open event log", zap.Error(err))
	}

	// Initialize message source
	source, err := bootstrap.OpenSource(ctx, cfg, log)
	if err != nil {
		_ = repo.Close()
		log.Fatal("Failed to open message source", zap.Error(err))
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ingestMetrics := metrics.NewIngest()
	if err := ingestMetrics.Register(registry); err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Initialize consumer
	c := consumer.NewConsumer(cfg, source, repo, ingestMetrics, log)
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("Failed to close consumer", zap.Error(err))
		}
	}()

	// Start health check and metrics endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	healthServer := &http.Server{
		Addr:              ":" + cfg.Consumer.HealthCheckPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Health check server starting", zap.String("address", healthServer.Addr))
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Health check server error", zap.Error(err))
		}
	}()

	// Start consumer; Start returns after the final flush
	log.Info("Consumer starting")
	if err := c.Start(ctx); err != nil {
		log.Error("Consumer error", zap.Error(err))
	}

	log.Info("Shutting down consumer gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown health check server", zap.Error(err))
	}
}
