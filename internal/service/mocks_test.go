package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BarkinBalci/viewer-analytics-service/internal/analytics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
	"github.com/BarkinBalci/viewer-analytics-service/internal/forecast"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// MockQueuePublisher is a mock implementation of queue.QueuePublisher
type MockQueuePublisher struct {
	mock.Mock
}

func (m *MockQueuePublisher) PublishEvent(ctx context.Context, event *dto.PublishEventRequest) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) FetchRange(ctx context.Context, r repository.TimeRange) ([]domain.Event, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockForecaster is a mock implementation of forecast.Forecaster
type MockForecaster struct {
	mock.Mock
}

func (m *MockForecaster) Forecast(ctx context.Context, series []analytics.MinuteCount, periods int) ([]forecast.Prediction, error) {
	args := m.Called(ctx, series, periods)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]forecast.Prediction), args.Error(1)
}

func at(sec int) time.Time {
	return testNow.Add(time.Duration(sec) * time.Second)
}

func ev(viewerID string, sec int, eventType domain.EventType, country string) domain.Event {
	return domain.Event{
		Timestamp: at(sec),
		ViewerID:  viewerID,
		VideoID:   "vid-1",
		EventType: eventType,
		Country:   country,
	}
}
