package consumer

import "fmt"

// ParseError reports a single message whose payload could not be turned into an event.
// The message is acknowledged and dropped; ingestion continues.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse message %s: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WriteError reports a batch the event log refused. The buffer is kept for the next attempt.
type WriteError struct {
	Count int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write batch of %d events: %v", e.Count, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
