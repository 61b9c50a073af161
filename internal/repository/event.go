package repository

import (
	"fmt"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// RowEvent rebuilds a stored event from its column values. Drivers scan
// event_type as a plain string and hand it over here for validation.
func RowEvent(id int64, ts time.Time, viewerID, videoID, eventType, country string) (domain.Event, error) {
	et, err := domain.ParseEventType(eventType)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %d: %w", id, err)
	}

	if country == "" {
		country = domain.DefaultCountry
	}

	return domain.Event{
		ID:        id,
		Timestamp: ts.UTC(),
		ViewerID:  viewerID,
		VideoID:   videoID,
		EventType: et,
		Country:   country,
	}, nil
}
