package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// naive timestamps carry no offset and are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

type eventPayload struct {
	TS        string `json:"ts"`
	ViewerID  string `json:"viewer_id"`
	VideoID   string `json:"video_id"`
	EventType string `json:"event_type"`
	Country   string `json:"country"`
}

// JSONEventParser implements MessageParser for JSON-formatted viewer events
type JSONEventParser struct{}

// NewJSONEventParser creates a new JSON event parser
func NewJSONEventParser() *JSONEventParser {
	return &JSONEventParser{}
}

// Parse parses a JSON message body into an Event
func (p *JSONEventParser) Parse(body []byte) (*domain.Event, error) {
	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message body: %w", err)
	}

	switch {
	case payload.ViewerID == "":
		return nil, errors.New("missing viewer_id")
	case payload.VideoID == "":
		return nil, errors.New("missing video_id")
	case payload.EventType == "":
		return nil, errors.New("missing event_type")
	}

	eventType, err := domain.ParseEventType(payload.EventType)
	if err != nil {
		return nil, err
	}

	ts, err := parseTimestamp(payload.TS)
	if err != nil {
		return nil, err
	}

	country := strings.TrimSpace(payload.Country)
	if country == "" {
		country = domain.DefaultCountry
	}

	return &domain.Event{
		Timestamp: ts,
		ViewerID:  payload.ViewerID,
		VideoID:   payload.VideoID,
		EventType: eventType,
		Country:   country,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing ts")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable ts %q", s)
}
