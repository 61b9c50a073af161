package domain

import (
	"fmt"
	"time"
)

// EventType is the closed set of viewer engagement signals
type EventType string

const (
	EventTypeViewStart EventType = "view_start"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeViewEnd   EventType = "view_end"
)

// DefaultCountry is used when a producer omits the country field
const DefaultCountry = "US"

// ParseEventType maps a wire value onto EventType, rejecting unknown values
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventTypeViewStart, EventTypeHeartbeat, EventTypeViewEnd:
		return EventType(s), nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	_, err := ParseEventType(string(t))
	return err == nil
}

func (t EventType) String() string {
	return string(t)
}

// Event represents an immutable viewer event stored in the event log.
// ID is assigned by the event log at write time; it is zero until then.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"ts"`
	ViewerID  string    `json:"viewer_id"`
	VideoID   string    `json:"video_id"`
	EventType EventType `json:"event_type"`
	Country   string    `json:"country"`
}
