package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/analytics"
	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
)

const (
	defaultSessionWindow  = 24 * time.Hour
	defaultStartsWindow   = 24 * time.Hour
	defaultForecastPeriod = 60
	maxForecastPeriods    = 24 * 60
)

// queryParams is an AnalyticsQuery with defaults applied and durations parsed
type queryParams struct {
	now     time.Time
	live    bool
	window  time.Duration
	step    time.Duration
	horizon time.Duration
	k       int
	periods int
}

// queryDefaults are the per-endpoint values used when a parameter is omitted.
// A zero default means the endpoint does not take the parameter; it is
// ignored and stays out of the cache key.
type queryDefaults struct {
	window  time.Duration
	step    time.Duration
	horizon time.Duration
	k       int
	periods int
}

func parseQuery(req *dto.AnalyticsQuery, clock time.Time, defaults queryDefaults) (queryParams, error) {
	if req == nil {
		req = &dto.AnalyticsQuery{}
	}

	q := queryParams{
		now:     clock.UTC(),
		live:    true,
		window:  defaults.window,
		step:    defaults.step,
		horizon: defaults.horizon,
		k:       defaults.k,
		periods: defaults.periods,
	}

	if req.Now != "" {
		now, err := time.Parse(time.RFC3339Nano, req.Now)
		if err != nil {
			return q, fmt.Errorf("%w: now must be RFC3339, got %q", analytics.ErrInvalidWindow, req.Now)
		}
		q.now = now.UTC()
		q.live = false
	}

	var err error
	if defaults.window > 0 {
		if q.window, err = parseDuration("window", req.Window, q.window); err != nil {
			return q, err
		}
	}
	if defaults.step > 0 {
		if q.step, err = parseDuration("step", req.Step, q.step); err != nil {
			return q, err
		}
	}
	if defaults.horizon > 0 {
		if q.horizon, err = parseDuration("horizon", req.Horizon, q.horizon); err != nil {
			return q, err
		}
	}

	if defaults.k != 0 && req.K != 0 {
		q.k = req.K
	}
	if defaults.periods != 0 {
		if req.Periods != 0 {
			q.periods = req.Periods
		}
		if q.periods < 0 || q.periods > maxForecastPeriods {
			return q, fmt.Errorf("%w: periods must be between 1 and %d, got %d", analytics.ErrInvalidWindow, maxForecastPeriods, q.periods)
		}
	}

	return q, nil
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration like 15m, got %q", analytics.ErrInvalidWindow, name, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", analytics.ErrInvalidWindow, name, d)
	}
	return d, nil
}

// cacheKey identifies a query result. Live queries share one key per
// parameter set so repeated dashboard reads within the cache ttl are served
// from the cache; pinned queries key on their reference instant.
func (q queryParams) cacheKey(query string) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString(":")
	if q.live {
		b.WriteString("live")
	} else {
		b.WriteString(q.now.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(&b, ":w=%s:s=%s:h=%s:k=%d:p=%d", q.window, q.step, q.horizon, q.k, q.periods)
	return b.String()
}
