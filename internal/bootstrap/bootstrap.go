// Package bootstrap opens the configured event log and message transport for the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue/kafka"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue/sqs"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository/clickhouse"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository/postgres"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository/sqlite"
)

// Publisher is a QueuePublisher that owns a connection
type Publisher interface {
	queue.QueuePublisher
	Close() error
}

// OpenEventLog connects to the event log selected by EVENT_LOG_DRIVER and
// creates its schema when initSchema is set.
func OpenEventLog(ctx context.Context, cfg *config.Config, initSchema bool, log *zap.Logger) (repository.EventRepository, error) {
	var (
		repo repository.EventRepository
		err  error
	)

	switch strings.ToLower(cfg.EventLog.Driver) {
	case config.EventLogClickHouse:
		var client *clickhouse.Client
		client, err = clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
		if err == nil {
			repo = clickhouse.NewRepository(client, log)
		}
	case config.EventLogPostgres:
		repo, err = postgres.Connect(ctx, cfg.Postgres.DSN, log)
	case config.EventLogSQLite:
		repo, err = sqlite.Open(ctx, cfg.SQLite.Path, log)
	default:
		return nil, fmt.Errorf("unsupported event log driver: %s", cfg.EventLog.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s event log: %w", cfg.EventLog.Driver, err)
	}

	if initSchema {
		if err := repo.InitSchema(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		log.Info("Event log schema initialized", zap.String("driver", cfg.EventLog.Driver))
	}

	return repo, nil
}

// OpenSource connects to the message source selected by SOURCE_DRIVER
func OpenSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (queue.QueueConsumer, error) {
	switch strings.ToLower(cfg.Source.Driver) {
	case config.SourceKafka:
		c, err := kafka.NewConsumer(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.SourceSQS:
		c, err := sqs.NewClient(ctx, cfg.SQS, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported source driver: %s", cfg.Source.Driver)
	}
}

// OpenPublisher connects a producer to the transport selected by SOURCE_DRIVER
func OpenPublisher(ctx context.Context, cfg *config.Config, log *zap.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Source.Driver) {
	case config.SourceKafka:
		p, err := kafka.NewPublisher(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.SourceSQS:
		c, err := sqs.NewClient(ctx, cfg.SQS, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported source driver: %s", cfg.Source.Driver)
	}
}
