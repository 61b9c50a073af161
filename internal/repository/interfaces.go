package repository

import (
	"context"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// TableName is the event log table shared by every driver
const TableName = "events"

// TimeRange selects events with From <= ts <= To
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Last returns the range of the given width ending at now
func Last(window time.Duration, now time.Time) TimeRange {
	return TimeRange{From: now.Add(-window), To: now}
}

// EventRepository defines the interface for event log storage operations
type EventRepository interface {
	// InsertBatch writes all events in one all-or-nothing operation and returns the number written
	InsertBatch(ctx context.Context, events []*domain.Event) (int, error)

	// FetchRange returns a snapshot of the events inside r, ordered by ts then id
	FetchRange(ctx context.Context, r TimeRange) ([]domain.Event, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}
