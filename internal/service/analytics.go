package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BarkinBalci/viewer-analytics-service/internal/analytics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/cache"
	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
	"github.com/BarkinBalci/viewer-analytics-service/internal/forecast"
	"github.com/BarkinBalci/viewer-analytics-service/internal/metrics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/repository"
	"github.com/BarkinBalci/viewer-analytics-service/internal/tracing"
)

// AnalyticsService answers windowed queries over snapshots of the event log
type AnalyticsService struct {
	repository repository.EventRepository
	cache      cache.Cache
	forecaster forecast.Forecaster
	metrics    *metrics.Query
	log        *zap.Logger
	now        func() time.Time
}

// NewAnalyticsService creates a new analytics service. cache and forecaster may be nil.
func NewAnalyticsService(repo repository.EventRepository, c cache.Cache, f forecast.Forecaster, m *metrics.Query, log *zap.Logger) *AnalyticsService {
	if m == nil {
		m = metrics.NewQuery()
	}
	return &AnalyticsService{
		repository: repo,
		cache:      c,
		forecaster: f,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// run executes one named query through the cache and records its latency and span
func run[T any](ctx context.Context, s *AnalyticsService, query, key string, compute func(context.Context) (T, error)) (T, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "analytics."+query, attribute.String("analytics.query", query))
	start := time.Now()

	value, hit, err := cache.GetOrCompute(ctx, s.cache, s.log, key, compute)

	if s.cache != nil {
		s.metrics.IncCache(hit)
	}
	s.metrics.ObserveQuery(query, time.Since(start).Seconds(), err)
	tracing.SetAttributes(ctx, attribute.Bool("analytics.cache_hit", hit))
	endSpan(err)

	return value, err
}

// snapshot fetches the events of the window ending at now
func (s *AnalyticsService) snapshot(ctx context.Context, window time.Duration, now time.Time) ([]domain.Event, error) {
	events, err := s.repository.FetchRange(ctx, repository.Last(window, now))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events from event log: %w", err)
	}
	s.metrics.ObserveSnapshot(len(events))
	return events, nil
}

// KPIs returns active viewers, events per second and the average dwell
func (s *AnalyticsService) KPIs(ctx context.Context, req *dto.AnalyticsQuery) (*dto.KPIsResponse, error) {
	return s.kpis(ctx, req, s.now())
}

// kpis reads fixed windows, so it takes no window parameter
func (s *AnalyticsService) kpis(ctx context.Context, req *dto.AnalyticsQuery, clock time.Time) (*dto.KPIsResponse, error) {
	q, err := parseQuery(req, clock, queryDefaults{})
	if err != nil {
		return nil, err
	}

	return run(ctx, s, "kpis", q.cacheKey("kpis"), func(ctx context.Context) (*dto.KPIsResponse, error) {
		events, err := s.snapshot(ctx, analytics.DefaultDwellWindow, q.now)
		if err != nil {
			return nil, err
		}

		kpis := analytics.Summarize(events, q.now)
		return &dto.KPIsResponse{
			Now:           q.now,
			ActiveViewers: kpis.ActiveViewers,
			EventsPerSec:  kpis.EventsPerSec,
			AvgDwellSec:   kpis.AvgDwellSec,
			AvgDwellMin:   kpis.AvgDwellSec / 60,
		}, nil
	})
}

// Concurrency returns the rolling concurrent viewer series
func (s *AnalyticsService) Concurrency(ctx context.Context, req *dto.AnalyticsQuery) (*dto.ConcurrencyResponse, error) {
	defaults := analytics.DefaultConcurrencyOptions()
	q, err := parseQuery(req, s.now(), queryDefaults{
		window:  defaults.Window,
		step:    defaults.Step,
		horizon: defaults.Horizon,
	})
	if err != nil {
		return nil, err
	}

	opts := analytics.ConcurrencyOptions{Window: q.window, Step: q.step, Horizon: q.horizon}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return run(ctx, s, "concurrency", q.cacheKey("concurrency"), func(ctx context.Context) (*dto.ConcurrencyResponse, error) {
		events, err := s.snapshot(ctx, opts.Window, q.now)
		if err != nil {
			return nil, err
		}

		series, err := analytics.RollingConcurrency(ctx, events, q.now, opts)
		if err != nil {
			return nil, err
		}

		points := make([]dto.ConcurrencyPoint, len(series))
		for i, p := range series {
			points[i] = dto.ConcurrencyPoint{Sec: p.Sec, Concurrent: p.Concurrent}
		}

		return &dto.ConcurrencyResponse{
			Now:     q.now,
			Window:  opts.Window.String(),
			Horizon: opts.Horizon.String(),
			Points:  points,
		}, nil
	})
}

// EventsPerSecond returns the per-second event counts of the window
func (s *AnalyticsService) EventsPerSecond(ctx context.Context, req *dto.AnalyticsQuery) (*dto.EventsPerSecondResponse, error) {
	q, err := parseQuery(req, s.now(), queryDefaults{window: analytics.DefaultRateWindow})
	if err != nil {
		return nil, err
	}

	return run(ctx, s, "events_per_second", q.cacheKey("events_per_second"), func(ctx context.Context) (*dto.EventsPerSecondResponse, error) {
		events, err := s.snapshot(ctx, q.window, q.now)
		if err != nil {
			return nil, err
		}

		series, err := analytics.EventsPerSecondSeries(events, q.now, q.window)
		if err != nil {
			return nil, err
		}

		points := make([]dto.RatePoint, len(series))
		for i, p := range series {
			points[i] = dto.RatePoint{Sec: p.Sec, Events: p.Events}
		}

		return &dto.EventsPerSecondResponse{
			Now:    q.now,
			Window: q.window.String(),
			Points: points,
		}, nil
	})
}

// Countries returns the top countries by distinct viewers
func (s *AnalyticsService) Countries(ctx context.Context, req *dto.AnalyticsQuery) (*dto.CountriesResponse, error) {
	return s.countries(ctx, req, s.now())
}

func (s *AnalyticsService) countries(ctx context.Context, req *dto.AnalyticsQuery, clock time.Time) (*dto.CountriesResponse, error) {
	q, err := parseQuery(req, clock, queryDefaults{
		window: analytics.DefaultCountriesWindow,
		k:      analytics.DefaultTopCountries,
	})
	if err != nil {
		return nil, err
	}
	if q.k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", analytics.ErrInvalidWindow, q.k)
	}

	return run(ctx, s, "countries", q.cacheKey("countries"), func(ctx context.Context) (*dto.CountriesResponse, error) {
		events, err := s.snapshot(ctx, q.window, q.now)
		if err != nil {
			return nil, err
		}

		ranked, err := analytics.TopCountries(events, q.now, q.window, q.k)
		if err != nil {
			return nil, err
		}

		countries := make([]dto.CountryData, len(ranked))
		for i, c := range ranked {
			countries[i] = dto.CountryData{Country: c.Country, ActiveViewers: c.Viewers}
		}

		return &dto.CountriesResponse{
			Now:       q.now,
			Window:    q.window.String(),
			Countries: countries,
		}, nil
	})
}

// Sessions returns the reconstructed sessions of the window and their dwell summary
func (s *AnalyticsService) Sessions(ctx context.Context, req *dto.AnalyticsQuery) (*dto.SessionsResponse, error) {
	q, err := parseQuery(req, s.now(), queryDefaults{window: defaultSessionWindow})
	if err != nil {
		return nil, err
	}

	return run(ctx, s, "sessions", q.cacheKey("sessions"), func(ctx context.Context) (*dto.SessionsResponse, error) {
		events, err := s.snapshot(ctx, q.window, q.now)
		if err != nil {
			return nil, err
		}

		sessions := analytics.Reconstruct(events, q.now)
		summary := analytics.DwellStats(sessions)

		data := make([]dto.SessionData, len(sessions))
		for i, session := range sessions {
			data[i] = dto.SessionData{
				ViewerID: session.ViewerID,
				Start:    session.Start,
				End:      session.End,
				DwellSec: session.DwellSec,
				Churned:  session.Churned,
			}
		}

		return &dto.SessionsResponse{
			Now:      q.now,
			Window:   q.window.String(),
			Summary:  dwellSummaryData(summary),
			Sessions: data,
		}, nil
	})
}

func dwellSummaryData(summary analytics.DwellSummary) dto.DwellSummaryData {
	return dto.DwellSummaryData{
		Sessions:  summary.Sessions,
		Churned:   summary.Churned,
		Censored:  summary.Censored,
		MeanSec:   summary.MeanSec,
		MedianSec: summary.MedianSec,
		P90Sec:    summary.P90Sec,
	}
}

// Survival fits the Kaplan-Meier retention curve over the sessions of the window
func (s *AnalyticsService) Survival(ctx context.Context, req *dto.AnalyticsQuery) (*dto.SurvivalResponse, error) {
	return s.survival(ctx, req, s.now())
}

func (s *AnalyticsService) survival(ctx context.Context, req *dto.AnalyticsQuery, clock time.Time) (*dto.SurvivalResponse, error) {
	q, err := parseQuery(req, clock, queryDefaults{window: defaultSessionWindow})
	if err != nil {
		return nil, err
	}

	return run(ctx, s, "survival", q.cacheKey("survival"), func(ctx context.Context) (*dto.SurvivalResponse, error) {
		events, err := s.snapshot(ctx, q.window, q.now)
		if err != nil {
			return nil, err
		}

		sessions := analytics.Reconstruct(events, q.now)
		summary := analytics.DwellStats(sessions)

		resp := &dto.SurvivalResponse{
			Now:      q.now,
			Window:   q.window.String(),
			Status:   dto.SurvivalStatusInsufficientData,
			Sessions: summary.Sessions,
			Churned:  summary.Churned,
			Censored: summary.Censored,
		}

		curve, ok := analytics.FitSurvival(sessions)
		if !ok {
			return resp, nil
		}

		resp.Status = dto.SurvivalStatusOK
		resp.Points = make([]dto.SurvivalPointData, len(curve.Points))
		for i, p := range curve.Points {
			resp.Points[i] = dto.SurvivalPointData{
				Sec:      p.Sec,
				Survival: p.Survival,
				AtRisk:   p.AtRisk,
				Events:   p.Events,
				Censored: p.Censored,
			}
		}
		if median, ok := curve.Median(); ok {
			resp.MedianSec = &median
		}

		return resp, nil
	})
}

// StartsPerMinute returns observed view starts per minute and, when a
// forecaster is configured and the history suffices, their forecast
func (s *AnalyticsService) StartsPerMinute(ctx context.Context, req *dto.AnalyticsQuery) (*dto.StartsPerMinuteResponse, error) {
	q, err := parseQuery(req, s.now(), queryDefaults{
		window:  defaultStartsWindow,
		periods: defaultForecastPeriod,
	})
	if err != nil {
		return nil, err
	}

	return run(ctx, s, "starts_per_minute", q.cacheKey("starts_per_minute"), func(ctx context.Context) (*dto.StartsPerMinuteResponse, error) {
		events, err := s.snapshot(ctx, q.window, q.now)
		if err != nil {
			return nil, err
		}

		series := analytics.StartsPerMinute(events)
		observed := make([]dto.MinuteCountData, len(series))
		for i, m := range series {
			observed[i] = dto.MinuteCountData{TS: m.Minute, Starts: m.Starts}
		}

		resp := &dto.StartsPerMinuteResponse{
			Now:            q.now,
			Window:         q.window.String(),
			Observed:       observed,
			ForecastStatus: dto.ForecastStatusUnavailable,
		}

		if s.forecaster == nil {
			return resp, nil
		}

		predictions, err := s.forecaster.Forecast(ctx, series, q.periods)
		switch {
		case errors.Is(err, forecast.ErrInsufficientHistory):
			resp.ForecastStatus = dto.ForecastStatusInsufficientHistory
			return resp, nil
		case err != nil:
			s.log.Warn("Forecast failed, serving observed series only", zap.Error(err))
			resp.ForecastStatus = dto.ForecastStatusFailed
			return resp, nil
		}

		resp.ForecastStatus = dto.ForecastStatusOK
		resp.Forecast = make([]dto.PredictionData, len(predictions))
		for i, p := range predictions {
			resp.Forecast[i] = dto.PredictionData{
				TS:        p.TS,
				Yhat:      p.Yhat,
				YhatLower: p.YhatLower,
				YhatUpper: p.YhatUpper,
			}
		}

		return resp, nil
	})
}

// Overview computes the dashboard panels concurrently, each on its own snapshot
func (s *AnalyticsService) Overview(ctx context.Context, req *dto.AnalyticsQuery) (*dto.OverviewResponse, error) {
	var (
		resp dto.OverviewResponse
		base dto.AnalyticsQuery
	)
	if req != nil {
		// panel windows are fixed, only the reference instant is shared
		base.Now = req.Now
	}
	clock := s.now()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		kpis, err := s.kpis(gctx, &base, clock)
		if err != nil {
			return fmt.Errorf("kpis: %w", err)
		}
		resp.KPIs = *kpis
		return nil
	})

	g.Go(func() error {
		countries, err := s.countries(gctx, &base, clock)
		if err != nil {
			return fmt.Errorf("countries: %w", err)
		}
		resp.Countries = *countries
		return nil
	})

	g.Go(func() error {
		survival, err := s.survival(gctx, &base, clock)
		if err != nil {
			return fmt.Errorf("survival: %w", err)
		}
		resp.Survival = *survival
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &resp, nil
}
