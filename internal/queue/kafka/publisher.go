package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	envConfig "github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
)

// Publisher writes viewer events to the topic keyed by viewer_id, so all
// events of one viewer land on the same partition
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

// NewPublisher connects a synchronous producer to the configured brokers
func NewPublisher(cfg envConfig.Kafka, log *zap.Logger) (*Publisher, error) {
	config, err := newSaramaConfig(cfg, "publisher")
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Kafka producer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return NewPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, log *zap.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, log: log}
}

// PublishEvent publishes a viewer event and waits for the broker acknowledgment
func (p *Publisher) PublishEvent(ctx context.Context, event *dto.PublishEventRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ViewerID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		p.log.Error("Failed to send message to Kafka",
			zap.String("viewer_id", event.ViewerID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	p.log.Debug("Event published to Kafka",
		zap.String("viewer_id", event.ViewerID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
