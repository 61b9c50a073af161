package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
)

// ReceiverConfig configures the receiver
type ReceiverConfig struct {
	// ErrorBackoff is the pause after a failed receive
	ErrorBackoff time.Duration
}

// Receiver pulls messages from the message source and forwards them to the batch writer
type Receiver struct {
	consumer queue.QueueConsumer
	config   ReceiverConfig
	log      *zap.Logger
}

// NewReceiver creates a new receiver
func NewReceiver(consumer queue.QueueConsumer, config ReceiverConfig, log *zap.Logger) *Receiver {
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = time.Second
	}
	return &Receiver{
		consumer: consumer,
		config:   config,
		log:      log,
	}
}

// Start receives messages until ctx is cancelled and closes out when done
func (r *Receiver) Start(ctx context.Context, out chan<- queue.Message) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			r.log.Info("Receiver shutting down")
			return
		}

		messages, err := r.consumer.ReceiveMessages(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("Receiver shutting down")
				return
			}
			r.log.Error("Error receiving messages", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.config.ErrorBackoff):
			}
			continue
		}

		if len(messages) == 0 {
			continue
		}

		r.log.Debug("Received messages", zap.Int("message_count", len(messages)))

		for _, msg := range messages {
			select {
			case <-ctx.Done():
				r.log.Info("Receiver shutting down while sending messages")
				return
			case out <- msg:
			}
		}
	}
}
