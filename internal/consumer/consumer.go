package consumer

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
)

// Consumer runs the ingestion pipeline: Receiver -> BatchWriter(Buffer) -> event log
type Consumer struct {
	source      queue.QueueConsumer
	repo        repository.EventRepository
	receiver    *Receiver
	batchWriter *BatchWriter
	bufferSize  int
	log         *zap.Logger
}

// NewConsumer wires the pipeline stages from configuration
func NewConsumer(cfg *config.Config, source queue.QueueConsumer, repo repository.EventRepository, m *metrics.Ingest, log *zap.Logger) *Consumer {
	receiver := NewReceiver(source, ReceiverConfig{}, log)

	buffer := NewBuffer(repo, NewJSONEventParser(), BufferConfig{
		BatchSize:     cfg.Consumer.BatchSize,
		FlushInterval: cfg.Consumer.FlushInterval(),
		FailureAlert:  cfg.Consumer.FlushFailureAlert,
	}, m, log)

	batchWriter := NewBatchWriter(buffer, BatchWriterConfig{
		ShutdownTimeout: cfg.Consumer.ShutdownTimeout(),
	}, log)

	return &Consumer{
		source:      source,
		repo:        repo,
		receiver:    receiver,
		batchWriter: batchWriter,
		bufferSize:  cfg.Consumer.ChannelBufferSize,
		log:         log,
	}
}

// Start runs the pipeline until ctx is cancelled and the final flush is done
func (c *Consumer) Start(ctx context.Context) error {
	messageChan := make(chan queue.Message, c.bufferSize)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.receiver.Start(ctx, messageChan)
	}()

	go func() {
		defer wg.Done()
		c.batchWriter.Start(ctx, messageChan)
	}()

	wg.Wait()
	c.log.Info("Consumer pipeline stopped")
	return nil
}

// Close releases the message source and the event log
func (c *Consumer) Close() error {
	return multierr.Combine(
		c.source.Close(),
		c.repo.Close(),
	)
}
