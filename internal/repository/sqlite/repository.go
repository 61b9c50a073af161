package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite driver (pure Go)

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
	"github.com/BarkinBalci/viewer-analytics-service/internal/tracing"
)

const dbSystem = "sqlite"

// tsLayout is fixed width so that text comparison orders like time
const tsLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		viewer_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		event_type TEXT NOT NULL CHECK (event_type IN ('view_start', 'heartbeat', 'view_end')),
		country TEXT NOT NULL DEFAULT 'US'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts)`,
	`CREATE INDEX IF NOT EXISTS idx_events_viewer ON events (viewer_id)`,
}

// Repository implements repository.EventRepository on a local SQLite file
type Repository struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens the database at path, creating parent directories, with WAL
// journaling so readers do not block the writer.
func Open(ctx context.Context, path string, log *zap.Logger) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	log.Info("SQLite event log opened", zap.String("path", path))
	return &Repository{db: db, log: log}, nil
}

// InitSchema creates the events table and its ts and viewer_id indexes
func (r *Repository) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
	}
	return nil
}

// InsertBatch writes all events inside one transaction
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.Event) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, dbSystem, repository.TableName, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (ts, viewer_id, video_id, event_type, country) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(events))
	for i, ev := range events {
		res, err := stmt.ExecContext(ctx,
			ev.Timestamp.UTC().Format(tsLayout), ev.ViewerID, ev.VideoID, string(ev.EventType), ev.Country)
		if err != nil {
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read inserted id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}

	for i, ev := range events {
		ev.ID = ids[i]
	}
	return len(events), nil
}

// FetchRange reads the events of tr ordered by ts then id
func (r *Repository) FetchRange(ctx context.Context, tr repository.TimeRange) (events []domain.Event, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, dbSystem, repository.TableName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, viewer_id, video_id, event_type, country
		FROM events
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts, id`, tr.From.UTC().Format(tsLayout), tr.To.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                                           int64
			rawTS, viewerID, videoID, eventType, country string
		)
		if err := rows.Scan(&id, &rawTS, &viewerID, &videoID, &eventType, &country); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, rawTS)
		if err != nil {
			r.log.Warn("Skipping event row with unparsable ts", zap.Int64("id", id), zap.Error(err))
			continue
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

// Ping checks the database handle
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database handle
func (r *Repository) Close() error {
	return r.db.Close()
}
