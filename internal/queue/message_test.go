package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Ack(t *testing.T) {
	called := 0
	msg := NewMessage("m-1", []byte(`{}`), func(ctx context.Context) error {
		called++
		return nil
	})

	assert.NoError(t, msg.Ack(context.Background()))
	assert.Equal(t, 1, called)
}

func TestMessage_AckError(t *testing.T) {
	ackErr := errors.New("receipt handle expired")
	msg := NewMessage("m-1", nil, func(ctx context.Context) error { return ackErr })

	assert.ErrorIs(t, msg.Ack(context.Background()), ackErr)
}

func TestMessage_AckNil(t *testing.T) {
	msg := NewMessage("m-1", nil, nil)
	assert.NoError(t, msg.Ack(context.Background()))
}
