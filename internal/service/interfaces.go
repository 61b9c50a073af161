package service

import (
	"context"

	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
)

// EventServicer defines the interface for event service operations
type EventServicer interface {
	ProcessEvent(ctx context.Context, event *dto.PublishEventRequest) error
	ProcessBulkEvents(ctx context.Context, events []dto.PublishEventRequest) (int, []string)
}

// AnalyticsServicer defines the interface for analytics queries
type AnalyticsServicer interface {
	KPIs(ctx context.Context, req *dto.AnalyticsQuery) (*dto.KPIsResponse, error)
	Concurrency(ctx context.Context, req *dto.AnalyticsQuery) (*dto.ConcurrencyResponse, error)
	EventsPerSecond(ctx context.Context, req *dto.AnalyticsQuery) (*dto.EventsPerSecondResponse, error)
	Countries(ctx context.Context, req *dto.AnalyticsQuery) (*dto.CountriesResponse, error)
	Sessions(ctx context.Context, req *dto.AnalyticsQuery) (*dto.SessionsResponse, error)
	Survival(ctx context.Context, req *dto.AnalyticsQuery) (*dto.SurvivalResponse, error)
	StartsPerMinute(ctx context.Context, req *dto.AnalyticsQuery) (*dto.StartsPerMinuteResponse, error)
	Overview(ctx context.Context, req *dto.AnalyticsQuery) (*dto.OverviewResponse, error)
}

var (
	_ EventServicer     = (*EventService)(nil)
	_ AnalyticsServicer = (*AnalyticsService)(nil)
)
