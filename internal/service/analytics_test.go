package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/viewer-analytics-service/internal/analytics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/cache"
	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
	"github.com/BarkinBalci/viewer-analytics-service/internal/forecast"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
)

func newTestService(repo *MockEventRepository, c cache.Cache, f forecast.Forecaster) *AnalyticsService {
	s := NewAnalyticsService(repo, c, f, metrics.NewQuery(), zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s
}

func liveEvents() []domain.Event {
	return []domain.Event{
		ev("v1", -600, domain.EventTypeViewStart, "US"),
		ev("v1", -300, domain.EventTypeViewEnd, "US"),
		ev("v2", -120, domain.EventTypeViewStart, "DE"),
		ev("v2", -30, domain.EventTypeHeartbeat, "DE"),
		ev("v3", -5, domain.EventTypeViewStart, "DE"),
		ev("v4", -2, domain.EventTypeHeartbeat, "TR"),
	}
}

func TestAnalyticsService_KPIs(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, repository.Last(analytics.DefaultDwellWindow, testNow)).
		Return(liveEvents(), nil).Once()

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.KPIs(context.Background(), &dto.AnalyticsQuery{})

	require.NoError(t, err)
	assert.Equal(t, testNow, resp.Now)
	assert.Equal(t, 3, resp.ActiveViewers)
	assert.InDelta(t, 0.2, resp.EventsPerSec, 1e-9)
	// v1 churned after 300s, v2 censored at 120s, v3 censored at 5s
	assert.InDelta(t, 425.0/3, resp.AvgDwellSec, 1e-9)
	assert.InDelta(t, resp.AvgDwellSec/60, resp.AvgDwellMin, 1e-9)
	mockRepo.AssertExpectations(t)
}

func TestAnalyticsService_KPIs_PinnedNow(t *testing.T) {
	pinned := testNow.Add(-time.Hour)
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, repository.Last(analytics.DefaultDwellWindow, pinned)).
		Return([]domain.Event{}, nil).Once()

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.KPIs(context.Background(), &dto.AnalyticsQuery{Now: pinned.Format(time.RFC3339)})

	require.NoError(t, err)
	assert.Equal(t, pinned, resp.Now)
	assert.Zero(t, resp.ActiveViewers)
	assert.Zero(t, resp.EventsPerSec)
	assert.Zero(t, resp.AvgDwellSec)
}

func TestAnalyticsService_InvalidParameters(t *testing.T) {
	s := newTestService(new(MockEventRepository), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"bad now", func() error { _, err := s.KPIs(ctx, &dto.AnalyticsQuery{Now: "noon"}); return err }},
		{"bad window", func() error { _, err := s.Sessions(ctx, &dto.AnalyticsQuery{Window: "a while"}); return err }},
		{"negative window", func() error { _, err := s.Survival(ctx, &dto.AnalyticsQuery{Window: "-5m"}); return err }},
		{"step beyond window", func() error {
			_, err := s.Concurrency(ctx, &dto.AnalyticsQuery{Window: "10s", Step: "1m"})
			return err
		}},
		{"zero horizon", func() error { _, err := s.Concurrency(ctx, &dto.AnalyticsQuery{Horizon: "0s"}); return err }},
		{"sub-second step", func() error { _, err := s.Concurrency(ctx, &dto.AnalyticsQuery{Step: "1ns"}); return err }},
		{"concurrency window too long", func() error {
			_, err := s.Concurrency(ctx, &dto.AnalyticsQuery{Window: "100000h"})
			return err
		}},
		{"negative k", func() error { _, err := s.Countries(ctx, &dto.AnalyticsQuery{K: -1}); return err }},
		{"too many periods", func() error { _, err := s.StartsPerMinute(ctx, &dto.AnalyticsQuery{Periods: 100000}); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), analytics.ErrInvalidWindow)
		})
	}
}

func TestAnalyticsService_Concurrency(t *testing.T) {
	events := []domain.Event{
		ev("v1", -3, domain.EventTypeViewStart, "US"),
		ev("v2", -2, domain.EventTypeViewStart, "US"),
		ev("v1", -1, domain.EventTypeHeartbeat, "US"),
	}
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, repository.Last(time.Minute, testNow)).Return(events, nil).Once()

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.Concurrency(context.Background(), &dto.AnalyticsQuery{Window: "1m", Step: "1s", Horizon: "2s"})

	require.NoError(t, err)
	assert.Equal(t, "1m0s", resp.Window)
	assert.Equal(t, "2s", resp.Horizon)

	got := make([]int, len(resp.Points))
	for i, p := range resp.Points {
		got[i] = p.Concurrent
	}
	assert.Equal(t, []int{1, 2, 2, 2}, got)
	assert.Equal(t, at(-3), resp.Points[0].Sec)
	assert.Equal(t, testNow, resp.Points[3].Sec)
}

func TestAnalyticsService_EventsPerSecondAndCountries(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(liveEvents(), nil)

	s := newTestService(mockRepo, nil, nil)

	eps, err := s.EventsPerSecond(context.Background(), &dto.AnalyticsQuery{})
	require.NoError(t, err)
	assert.Equal(t, "5m0s", eps.Window)
	require.Len(t, eps.Points, 5)
	assert.Equal(t, at(-300), eps.Points[0].Sec, "the window start is inclusive")

	countries, err := s.Countries(context.Background(), &dto.AnalyticsQuery{K: 2})
	require.NoError(t, err)
	assert.Equal(t, []dto.CountryData{
		{Country: "DE", ActiveViewers: 2},
		{Country: "TR", ActiveViewers: 1},
	}, countries.Countries)
}

func TestAnalyticsService_Sessions(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, repository.Last(24*time.Hour, testNow)).Return(liveEvents(), nil).Once()

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.Sessions(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, resp.Sessions, 3, "v4 has no view_start")
	assert.Equal(t, "v1", resp.Sessions[0].ViewerID)
	assert.True(t, resp.Sessions[0].Churned)
	assert.Equal(t, 300.0, resp.Sessions[0].DwellSec)
	assert.Equal(t, 3, resp.Summary.Sessions)
	assert.Equal(t, 1, resp.Summary.Churned)
	assert.Equal(t, 2, resp.Summary.Censored)
}

func TestAnalyticsService_Survival(t *testing.T) {
	// seven churned and three censored sessions
	var events []domain.Event
	dwell := []int{10, 20, 20, 30, 40, 50, 60}
	for i, d := range dwell {
		viewer := fmt.Sprintf("churned-%d", i)
		events = append(events,
			ev(viewer, -1000, domain.EventTypeViewStart, "US"),
			ev(viewer, -1000+d, domain.EventTypeViewEnd, "US"))
	}
	for i, d := range []int{15, 25, 45} {
		events = append(events, ev(fmt.Sprintf("censored-%d", i), -d, domain.EventTypeViewStart, "US"))
	}

	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(events, nil).Once()

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.Survival(context.Background(), &dto.AnalyticsQuery{})

	require.NoError(t, err)
	assert.Equal(t, dto.SurvivalStatusOK, resp.Status)
	assert.Equal(t, 10, resp.Sessions)
	assert.Equal(t, 7, resp.Churned)
	assert.Equal(t, 3, resp.Censored)
	require.NotEmpty(t, resp.Points)
	assert.Equal(t, 0.0, resp.Points[0].Sec)
	assert.Equal(t, 1.0, resp.Points[0].Survival)
	require.NotNil(t, resp.MedianSec)

	for i := 1; i < len(resp.Points); i++ {
		assert.LessOrEqual(t, resp.Points[i].Survival, resp.Points[i-1].Survival)
	}
}

func TestAnalyticsService_Survival_InsufficientData(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return([]domain.Event{
		ev("v1", -10, domain.EventTypeViewStart, "US"),
		ev("v2", -5, domain.EventTypeViewStart, "US"),
	}, nil).Once()

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.Survival(context.Background(), &dto.AnalyticsQuery{})

	require.NoError(t, err)
	assert.Equal(t, dto.SurvivalStatusInsufficientData, resp.Status)
	assert.Equal(t, 2, resp.Sessions)
	assert.Empty(t, resp.Points)
	assert.Nil(t, resp.MedianSec)
}

func startEvents(minutes int) []domain.Event {
	var events []domain.Event
	for m := 0; m < minutes; m++ {
		events = append(events, ev(fmt.Sprintf("v%d", m), -60*(minutes-m), domain.EventTypeViewStart, "US"))
	}
	return events
}

func TestAnalyticsService_StartsPerMinute(t *testing.T) {
	tests := []struct {
		name       string
		forecaster func() forecast.Forecaster
		wantStatus string
		wantPoints int
	}{
		{
			name:       "no forecaster",
			forecaster: func() forecast.Forecaster { return nil },
			wantStatus: dto.ForecastStatusUnavailable,
		},
		{
			name: "insufficient history",
			forecaster: func() forecast.Forecaster {
				f := new(MockForecaster)
				f.On("Forecast", mock.Anything, mock.Anything, 5).Return(nil, forecast.ErrInsufficientHistory)
				return f
			},
			wantStatus: dto.ForecastStatusInsufficientHistory,
		},
		{
			name: "forecaster failure",
			forecaster: func() forecast.Forecaster {
				f := new(MockForecaster)
				f.On("Forecast", mock.Anything, mock.Anything, 5).Return(nil, errors.New("model diverged"))
				return f
			},
			wantStatus: dto.ForecastStatusFailed,
		},
		{
			name:       "linear forecast",
			forecaster: func() forecast.Forecaster { return forecast.NewLinear() },
			wantStatus: dto.ForecastStatusOK,
			wantPoints: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockEventRepository)
			mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(startEvents(12), nil).Once()

			s := newTestService(mockRepo, nil, tt.forecaster())
			resp, err := s.StartsPerMinute(context.Background(), &dto.AnalyticsQuery{Periods: 5})

			require.NoError(t, err)
			assert.Len(t, resp.Observed, 12)
			assert.Equal(t, tt.wantStatus, resp.ForecastStatus)
			assert.Len(t, resp.Forecast, tt.wantPoints)
		})
	}
}

func TestAnalyticsService_CachesLiveQueries(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(liveEvents(), nil).Once()

	s := newTestService(mockRepo, cache.NewMemory(time.Minute), nil)

	first, err := s.KPIs(context.Background(), &dto.AnalyticsQuery{})
	require.NoError(t, err)
	second, err := s.KPIs(context.Background(), &dto.AnalyticsQuery{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	mockRepo.AssertNumberOfCalls(t, "FetchRange", 1)
}

func TestAnalyticsService_KPIs_IgnoresWindow(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, repository.Last(analytics.DefaultDwellWindow, testNow)).Return(liveEvents(), nil).Once()

	s := newTestService(mockRepo, cache.NewMemory(time.Minute), nil)

	first, err := s.KPIs(context.Background(), &dto.AnalyticsQuery{Window: "1s"})
	require.NoError(t, err)
	second, err := s.KPIs(context.Background(), &dto.AnalyticsQuery{Window: "not a duration"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	mockRepo.AssertNumberOfCalls(t, "FetchRange", 1)
}

func TestAnalyticsService_RepositoryError(t *testing.T) {
	boom := errors.New("connection reset")
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(nil, boom)

	s := newTestService(mockRepo, cache.NewMemory(time.Minute), nil)
	_, err := s.Sessions(context.Background(), &dto.AnalyticsQuery{})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, analytics.ErrInvalidWindow)
}

func TestAnalyticsService_Overview(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(liveEvents(), nil)

	s := newTestService(mockRepo, nil, nil)
	resp, err := s.Overview(context.Background(), &dto.AnalyticsQuery{Window: "1s"})

	require.NoError(t, err)
	assert.Equal(t, 3, resp.KPIs.ActiveViewers)
	assert.Equal(t, "15m0s", resp.Countries.Window, "panel windows are fixed")
	assert.Equal(t, dto.SurvivalStatusOK, resp.Survival.Status)
	mockRepo.AssertNumberOfCalls(t, "FetchRange", 3)
}

func TestAnalyticsService_Overview_SharesLiveClock(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(liveEvents(), nil)

	s := newTestService(mockRepo, nil, nil)
	calls := 0
	s.now = func() time.Time {
		calls++
		return testNow.Add(time.Duration(calls) * time.Second)
	}

	resp, err := s.Overview(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, resp.KPIs.Now, resp.Countries.Now)
	assert.Equal(t, resp.KPIs.Now, resp.Survival.Now)
	assert.True(t, resp.KPIs.Now.Equal(testNow.Add(time.Second)))
}

func TestAnalyticsService_Overview_Error(t *testing.T) {
	mockRepo := new(MockEventRepository)
	mockRepo.On("FetchRange", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	s := newTestService(mockRepo, nil, nil)
	_, err := s.Overview(context.Background(), nil)

	assert.Error(t, err)
}
