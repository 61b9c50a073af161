package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
)

// BufferConfig configures the flush triggers of a Buffer
type BufferConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	// FailureAlert is the consecutive failure count from which failed flushes log at error level
	FailureAlert int
}

// Buffer accumulates parsed events and writes them to the event log in one
// batch once it is large enough or old enough. Source messages are only
// acknowledged after the batch holding them was written, so a crash or a
// failed write leads to redelivery rather than loss.
//
// A Buffer is owned by a single goroutine and is not safe for concurrent use.
type Buffer struct {
	repo    repository.EventRepository
	parser  MessageParser
	config  BufferConfig
	metrics *metrics.Ingest
	log     *zap.Logger
	now     func() time.Time

	events []*domain.Event
	// pending holds every message to acknowledge on the next successful flush
	pending     []queue.Message
	lastFlush   time.Time
	lastAttempt time.Time
	failures    int
}

// NewBuffer creates an empty buffer whose flush clock starts now
func NewBuffer(repo repository.EventRepository, parser MessageParser, config BufferConfig, m *metrics.Ingest, log *zap.Logger) *Buffer {
	b := &Buffer{
		repo:    repo,
		parser:  parser,
		config:  config,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	b.lastFlush = b.now()
	return b
}

// Len returns the number of buffered events
func (b *Buffer) Len() int {
	return len(b.events)
}

// ConsecutiveFailures returns the number of flushes that failed since the last success
func (b *Buffer) ConsecutiveFailures() int {
	return b.failures
}

// Accept parses msg and appends the event. A malformed message yields a
// *ParseError and is dropped: it is acknowledged right away when nothing is
// buffered, otherwise together with the next successful flush so that no
// offset is committed past events that are not yet written.
func (b *Buffer) Accept(ctx context.Context, msg queue.Message) error {
	b.metrics.IncMessagesReceived()

	event, err := b.parser.Parse(msg.Body)
	if err != nil {
		b.metrics.IncParseErrors()
		parseErr := &ParseError{MessageID: msg.ID, Err: err}
		b.log.Warn("Dropping malformed message",
			zap.String("message_id", msg.ID),
			zap.Error(err))

		if len(b.events) == 0 {
			if ackErr := msg.Ack(ctx); ackErr != nil {
				b.log.Error("Failed to ack malformed message",
					zap.String("message_id", msg.ID),
					zap.Error(ackErr))
			}
		} else {
			b.pending = append(b.pending, msg)
		}
		return parseErr
	}

	b.events = append(b.events, event)
	b.pending = append(b.pending, msg)
	b.metrics.SetBufferedEvents(len(b.events))
	return nil
}

// Due reports whether a flush should be attempted now. After a failed flush
// the next attempt waits a full flush interval from the failed one.
func (b *Buffer) Due() bool {
	if len(b.events) == 0 {
		return false
	}

	now := b.now()
	if b.failures > 0 && now.Sub(b.lastAttempt) < b.config.FlushInterval {
		return false
	}

	return len(b.events) >= b.config.BatchSize || now.Sub(b.lastFlush) >= b.config.FlushInterval
}

// Flush writes the whole buffer in one all-or-nothing batch. On success every
// pending message is acknowledged and the buffer is cleared. On failure the
// buffer is kept intact and a *WriteError is returned.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	count := len(b.events)
	if count == 0 {
		return 0, nil
	}

	start := b.now()
	b.lastAttempt = start

	inserted, err := b.repo.InsertBatch(ctx, b.events)
	if err == nil && inserted != count {
		err = fmt.Errorf("partial insert: %d of %d events", inserted, count)
	}

	if err != nil {
		b.failures++
		b.metrics.ObserveFlushFailure(b.failures, b.now().Sub(start).Seconds())

		fields := []zap.Field{
			zap.Int("buffered_events", count),
			zap.Int("consecutive_failures", b.failures),
			zap.Error(err),
		}
		if b.config.FailureAlert > 0 && b.failures >= b.config.FailureAlert {
			b.log.Error("Event log flush keeps failing, events retained in memory", fields...)
		} else {
			b.log.Warn("Failed to flush events, will retry", fields...)
		}
		return 0, &WriteError{Count: count, Err: err}
	}

	for _, msg := range b.pending {
		if ackErr := msg.Ack(ctx); ackErr != nil {
			b.log.Error("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(ackErr))
		}
	}

	b.metrics.ObserveFlush(count, b.now().Sub(start).Seconds())
	b.metrics.SetBufferedEvents(0)

	b.events = nil
	b.pending = nil
	b.lastFlush = b.now()
	b.failures = 0

	b.log.Info("Flushed events to event log", zap.Int("count", count))
	return count, nil
}
