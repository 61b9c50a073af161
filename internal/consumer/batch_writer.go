package consumer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
)

const (
	minTickInterval        = 10 * time.Millisecond
	defaultShutdownTimeout = 10 * time.Second
)

// BatchWriterConfig configures the batch writer
type BatchWriterConfig struct {
	// TickInterval is how often the time trigger is checked when no message arrives.
	// Zero means a quarter of the buffer's flush interval.
	TickInterval    time.Duration
	ShutdownTimeout time.Duration
}

// BatchWriter owns a Buffer and runs its flush triggers
type BatchWriter struct {
	buffer *Buffer
	config BatchWriterConfig
	log    *zap.Logger
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(buffer *Buffer, config BatchWriterConfig, log *zap.Logger) *BatchWriter {
	if config.TickInterval <= 0 {
		config.TickInterval = max(buffer.config.FlushInterval/4, minTickInterval)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	return &BatchWriter{
		buffer: buffer,
		config: config,
		log:    log,
	}
}

// Start feeds messages into the buffer and flushes whenever a trigger fires.
// It returns after a final flush once ctx is cancelled or in is closed.
func (w *BatchWriter) Start(ctx context.Context, in <-chan queue.Message) {
	ticker := time.NewTicker(w.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Batch writer shutting down")
			w.finalFlush(ctx)
			return

		case msg, ok := <-in:
			if !ok {
				w.log.Info("Batch writer input channel closed")
				w.finalFlush(ctx)
				return
			}

			// parse errors are logged and acknowledged by the buffer
			_ = w.buffer.Accept(ctx, msg)
			w.flushIfDue(ctx)

		case <-ticker.C:
			w.flushIfDue(ctx)
		}
	}
}

func (w *BatchWriter) flushIfDue(ctx context.Context) {
	if !w.buffer.Due() {
		return
	}
	// a failed flush is logged by the buffer and retried on a later trigger
	_, _ = w.buffer.Flush(ctx)
}

// finalFlush writes what is left on a context that outlives the cancelled one
func (w *BatchWriter) finalFlush(ctx context.Context) {
	if w.buffer.Len() == 0 {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.ShutdownTimeout)
	defer cancel()

	w.log.Info("Flushing final batch", zap.Int("event_count", w.buffer.Len()))
	if _, err := w.buffer.Flush(flushCtx); err != nil {
		var writeErr *WriteError
		if errors.As(err, &writeErr) {
			w.log.Error("Final flush failed, unacknowledged events will be redelivered",
				zap.Int("event_count", writeErr.Count),
				zap.Error(writeErr.Err))
		}
	}
}
