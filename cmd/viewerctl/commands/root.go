package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/bootstrap"
	"github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/forecast"
	"github.com/BarkinBalci/viewer-analytics-service/internal/logger"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
	"github.com/BarkinBalci/viewer-analytics-service/internal/service"
)

const cliName = "viewerctl"

var rootCmd = &cobra.Command{
	Use:           cliName,
	Short:         "Query the viewer event log and publish synthetic traffic",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(NewQueryCommands()...)
	rootCmd.AddCommand(NewSimulateCommand())
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openAnalytics and openPublisher resolve the backends from the environment.
// Tests swap them for in-process fakes.
var (
	openAnalytics = openAnalyticsFromEnv
	openPublisher = openPublisherFromEnv
)

func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Service.Environment, cliName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func openAnalyticsFromEnv(ctx context.Context) (service.AnalyticsServicer, func() error, error) {
	cfg, log, err := loadEnv()
	if err != nil {
		return nil, nil, err
	}

	repo, err := bootstrap.OpenEventLog(ctx, cfg, false, log)
	if err != nil {
		return nil, nil, err
	}

	var forecaster forecast.Forecaster
	if cfg.Forecast.Enabled {
		forecaster = forecast.NewLinear()
	}

	svc := service.NewAnalyticsService(repo, nil, forecaster, nil, log)
	return svc, func() error {
		_ = log.Sync()
		return repo.Close()
	}, nil
}

func openPublisherFromEnv(ctx context.Context) (queue.QueuePublisher, *zap.Logger, func() error, error) {
	cfg, log, err := loadEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	publisher, err := bootstrap.OpenPublisher(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return publisher, log, func() error {
		_ = log.Sync()
		return publisher.Close()
	}, nil
}
