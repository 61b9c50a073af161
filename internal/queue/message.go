package queue

import "context"

// Message is one raw payload pulled from the message source together with
// the callback that acknowledges it back to the source.
type Message struct {
	ID   string
	Body []byte
	ack  func(context.Context) error
}

// NewMessage creates a message; ack may be nil for sources without acknowledgment
func NewMessage(id string, body []byte, ack func(context.Context) error) Message {
	return Message{
		ID:   id,
		Body: body,
		ack:  ack,
	}
}

// Ack acknowledges the message so the source will not redeliver it
func (m Message) Ack(ctx context.Context) error {
	if m.ack != nil {
		return m.ack(ctx)
	}
	return nil
}
