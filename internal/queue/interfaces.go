package queue

import (
	"context"

	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
)

// QueuePublisher defines the interface for publishing viewer events to the message source
type QueuePublisher interface {
	PublishEvent(ctx context.Context, event *dto.PublishEventRequest) error
}

// QueueConsumer defines the interface for pulling raw messages from the message source.
// ReceiveMessages may return an empty slice when nothing arrived within the source's wait time.
type QueueConsumer interface {
	ReceiveMessages(ctx context.Context) ([]Message, error)
	Close() error
}
