package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
	"github.com/BarkinBalci/viewer-analytics-service/internal/tracing"
)

const dbSystem = "postgresql"

// maxRowsPerStatement keeps a multi-row insert below the 65535 bind parameter limit
const maxRowsPerStatement = 10000

var insertColumns = []string{"ts", "viewer_id", "video_id", "event_type", "country"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		viewer_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		event_type TEXT NOT NULL CHECK (event_type IN ('view_start', 'heartbeat', 'view_end')),
		country TEXT NOT NULL DEFAULT 'US'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts)`,
	`CREATE INDEX IF NOT EXISTS idx_events_viewer ON events (viewer_id)`,
}

// Repository implements repository.EventRepository for PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Connect opens a connection pool for dsn and verifies it
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	log.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database))

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	r := &Repository{pool: pool, log: log}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info("PostgreSQL connection established successfully")
	return r, nil
}

// InitSchema creates the events table and its ts and viewer_id indexes
func (r *Repository) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize postgres schema: %w", err)
		}
	}

	r.log.Info("PostgreSQL schema initialized successfully")
	return nil
}

// InsertBatch writes all events inside one transaction
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.Event) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, dbSystem, repository.TableName, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	for start := 0; start < len(events); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(events))
		sql, args := buildInsert(events[start:end])

		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert events: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted ids: %w", err)
		}
		for i, id := range ids {
			events[start+i].ID = id
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}

	return len(events), nil
}

// buildInsert renders one multi-row INSERT for events with $n placeholders
func buildInsert(events []*domain.Event) (string, []any) {
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*len(insertColumns))

	argi := 1
	for _, ev := range events {
		ph := make([]string, len(insertColumns))
		for i := range insertColumns {
			ph[i] = fmt.Sprintf("$%d", argi)
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args, ev.Timestamp.UTC(), ev.ViewerID, ev.VideoID, string(ev.EventType), ev.Country)
	}

	sql := "INSERT INTO events (" + strings.Join(insertColumns, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" RETURNING id"

	return sql, args
}

// FetchRange reads the events of tr ordered by ts then id
func (r *Repository) FetchRange(ctx context.Context, tr repository.TimeRange) (events []domain.Event, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, dbSystem, repository.TableName, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT id, ts, viewer_id, video_id, event_type, country
		FROM events
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts, id`, tr.From.UTC(), tr.To.UTC())
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

// Ping checks the pool with a trivial round trip
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	return r.pool.QueryRow(ctx, "select 1").Scan(&one)
}

// Close closes the pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}
