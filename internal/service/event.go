package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
)

// maxClockSkew is how far ahead of the server clock an event timestamp may be
const maxClockSkew = 5 * time.Second

// EventService publishes viewer events to the message source
type EventService struct {
	publisher queue.QueuePublisher
	log       *zap.Logger
	now       func() time.Time
}

// NewEventService creates a new event service
func NewEventService(publisher queue.QueuePublisher, log *zap.Logger) *EventService {
	return &EventService{
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// ProcessEvent validates a single event, stamps it when ts is omitted and publishes it
func (s *EventService) ProcessEvent(ctx context.Context, event *dto.PublishEventRequest) error {
	if _, err := domain.ParseEventType(event.EventType); err != nil {
		return err
	}

	now := s.now().UTC()
	if event.TS == "" {
		event.TS = now.Format(time.RFC3339Nano)
	} else {
		ts, err := time.Parse(time.RFC3339Nano, event.TS)
		if err != nil {
			return fmt.Errorf("ts must be RFC3339, got %q", event.TS)
		}
		if ts.After(now.Add(maxClockSkew)) {
			s.log.Warn("Timestamp validation failed: future timestamp",
				zap.Time("event_ts", ts),
				zap.Time("current_time", now),
				zap.String("viewer_id", event.ViewerID))
			return fmt.Errorf("timestamp cannot be in the future: %s > %s", ts.Format(time.RFC3339), now.Format(time.RFC3339))
		}
	}

	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event to queue: %w", err)
	}

	return nil
}

// ProcessBulkEvents publishes every valid event and reports the rejected ones
func (s *EventService) ProcessBulkEvents(ctx context.Context, events []dto.PublishEventRequest) (int, []string) {
	accepted := 0
	var errors []string

	for i := range events {
		if err := s.ProcessEvent(ctx, &events[i]); err != nil {
			errors = append(errors, fmt.Sprintf("event %d: %s", i, err))
			s.log.Warn("Failed to process event in bulk",
				zap.Int("index", i),
				zap.Error(err),
				zap.String("viewer_id", events[i].ViewerID))
			continue
		}
		accepted++
	}

	return accepted, errors
}
