package kafka

import (
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// claimedMessage keeps the session a message was claimed in, which is the
// session its offset must be marked on
type claimedMessage struct {
	msg  *sarama.ConsumerMessage
	sess sarama.ConsumerGroupSession
}

// consumerHandler forwards claimed messages onto a channel drained by ReceiveMessages
type consumerHandler struct {
	ready       chan struct{}
	readyCloser sync.Once
	messages    chan claimedMessage
	log         *zap.Logger
}

func newConsumerHandler(bufferSize int, log *zap.Logger) *consumerHandler {
	return &consumerHandler{
		ready:    make(chan struct{}),
		messages: make(chan claimedMessage, bufferSize),
		log:      log,
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (h *consumerHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.log.Info("Kafka consumer session started",
		zap.String("member_id", sess.MemberID()),
		zap.Int32("generation_id", sess.GenerationID()))
	h.readyCloser.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (h *consumerHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	return nil
}

// ConsumeClaim forwards the messages of one partition claim until the session ends
func (h *consumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- claimedMessage{msg: msg, sess: sess}:
			case <-sess.Context().Done():
				return nil
			}
		case <-sess.Context().Done():
			h.log.Info("Kafka session context done, stopping claim",
				zap.Int32("partition", claim.Partition()))
			return nil
		}
	}
}
