package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	envConfig "github.com/BarkinBalci/viewer-analytics-service/internal/config"
	"github.com/BarkinBalci/viewer-analytics-service/internal/queue"
)

const (
	defaultReadTimeout = time.Second
	defaultMaxMessages = 500
	defaultBufferSize  = 1000
)

// Consumer reads viewer events from a topic as a member of a consumer group.
// Acknowledging a message marks its offset in the session it was claimed in;
// marked offsets are committed by sarama's auto-commit and at session end.
type Consumer struct {
	group       sarama.ConsumerGroup
	handler     *consumerHandler
	topic       string
	readTimeout time.Duration
	maxMessages int

	lifecycleCtx context.Context
	cancelFn     context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
	log          *zap.Logger
}

// Option configures a Consumer
type Option func(*Consumer)

// WithReadTimeout bounds how long ReceiveMessages waits for the first message
func WithReadTimeout(t time.Duration) Option {
	return func(c *Consumer) {
		c.readTimeout = t
	}
}

// WithMaxMessages caps the messages returned by one ReceiveMessages call
func WithMaxMessages(n int) Option {
	return func(c *Consumer) {
		c.maxMessages = n
	}
}

// NewConsumer joins the configured consumer group and starts consuming in the background
func NewConsumer(cfg envConfig.Kafka, log *zap.Logger, opts ...Option) (*Consumer, error) {
	config, err := newSaramaConfig(cfg, "consumer")
	if err != nil {
		return nil, err
	}

	sarama.Logger = zap.NewStdLog(log.Named("sarama"))

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	log.Info("Kafka consumer group created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID))

	c := newConsumer(group, cfg.Topic, log, opts...)
	c.start()
	return c, nil
}

func newConsumer(group sarama.ConsumerGroup, topic string, log *zap.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		group:       group,
		topic:       topic,
		readTimeout: defaultReadTimeout,
		maxMessages: defaultMaxMessages,
		log:         log,
	}
	for _, o := range opts {
		o(c)
	}

	c.handler = newConsumerHandler(defaultBufferSize, log)
	c.lifecycleCtx, c.cancelFn = context.WithCancel(context.Background())
	return c
}

func (c *Consumer) start() {
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.lifecycleCtx.Done():
				return
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				c.log.Error("Kafka consumer error", zap.Error(err))
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for {
			// Consume returns on every rebalance and must be called again
			if err := c.group.Consume(c.lifecycleCtx, []string{c.topic}, c.handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.log.Error("Kafka consume failed, retrying", zap.Error(err))
				select {
				case <-c.lifecycleCtx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			if c.lifecycleCtx.Err() != nil {
				return
			}
		}
	}()
}

// ReceiveMessages waits up to the read timeout for a first message, then
// drains whatever else is already buffered up to the configured maximum
func (c *Consumer) ReceiveMessages(ctx context.Context) ([]queue.Message, error) {
	timeout := time.NewTimer(c.readTimeout)
	defer timeout.Stop()

	var messages []queue.Message

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.lifecycleCtx.Done():
		return nil, errors.New("kafka consumer is closed")
	case <-timeout.C:
		return messages, nil
	case m := <-c.handler.messages:
		messages = append(messages, toMessage(m))
	}

	for len(messages) < c.maxMessages {
		select {
		case m := <-c.handler.messages:
			messages = append(messages, toMessage(m))
		default:
			return messages, nil
		}
	}

	return messages, nil
}

func toMessage(m claimedMessage) queue.Message {
	id := fmt.Sprintf("%s:%d:%d", m.msg.Topic, m.msg.Partition, m.msg.Offset)
	return queue.NewMessage(id, m.msg.Value, func(context.Context) error {
		m.sess.MarkMessage(m.msg, "")
		return nil
	})
}

// Close leaves the consumer group and stops the background loops
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancelFn()
		err = c.group.Close()
		c.wg.Wait()
		c.log.Info("Kafka consumer closed")
	})
	return err
}
