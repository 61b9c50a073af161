package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
	"github.com/BarkinBalci/viewer-analytics-service/internal/tracing"
)

const dbSystem = "clickhouse"

// Repository implements repository.EventRepository for ClickHouse
type Repository struct {
	client *Client
	ids    *idSequence
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		ids:    &idSequence{},
		log:    log,
	}
}

// idSequence hands out strictly increasing ids seeded from the wall clock,
// since ClickHouse has no auto increment column.
type idSequence struct {
	mu   sync.Mutex
	last int64
}

func (s *idSequence) next(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := now.UnixNano()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// InitSchema creates the events table ordered by ts with a bloom filter on viewer_id
func (r *Repository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		id Int64,
		ts DateTime64(3, 'UTC'),
		viewer_id String,
		video_id String,
		event_type LowCardinality(String),
		country LowCardinality(String) DEFAULT 'US',
		INDEX idx_events_viewer viewer_id TYPE bloom_filter GRANULARITY 4
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(ts)
	ORDER BY (ts, id)
	SETTINGS index_granularity = 8192
	`

	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// InsertBatch sends all events as a single insert block
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.Event) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, dbSystem, repository.TableName, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO events (id, ts, viewer_id, video_id, event_type, country)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now()
	for _, event := range events {
		if event.ID == 0 {
			event.ID = r.ids.next(now)
		}

		if err := batch.Append(
			event.ID,
			event.Timestamp.UTC(),
			event.ViewerID,
			event.VideoID,
			string(event.EventType),
			event.Country,
		); err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return len(events), nil
}

// FetchRange reads the events of r ordered by ts then id
func (r *Repository) FetchRange(ctx context.Context, tr repository.TimeRange) (events []domain.Event, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, dbSystem, repository.TableName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.client.Conn().Query(ctx, `
		SELECT id, ts, viewer_id, video_id, event_type, country
		FROM events
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts, id
	`, tr.From.UTC(), tr.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                                    int64
			ts                                    time.Time
			viewerID, videoID, eventType, country string
		)
		if err := rows.Scan(&id, &ts, &viewerID, &videoID, &eventType, &country); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		event, err := repository.RowEvent(id, ts, viewerID, videoID, eventType, country)
		if err != nil {
			r.log.Warn("Skipping unreadable event row", zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}
