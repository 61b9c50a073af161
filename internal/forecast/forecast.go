// Package forecast predicts future view starts per minute from the observed series.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/BarkinBalci/viewer-analytics-service/internal/analytics"
)

var (
	// ErrInsufficientHistory means the series is too short to fit a model on
	ErrInsufficientHistory = errors.New("insufficient history for forecast")
	// ErrInvalidPeriods means a non-positive forecast horizon was requested
	ErrInvalidPeriods = errors.New("periods must be positive")
)

// MinHistory is the minimum number of observed minutes a forecast needs
const MinHistory = 10

// z score of the 10th and 90th percentile of the standard normal
const interval80 = 1.2815515655446004

// Prediction is the forecast of one future minute with its 80% interval
type Prediction struct {
	TS        time.Time
	Yhat      float64
	YhatLower float64
	YhatUpper float64
}

// Forecaster predicts the next periods minutes after the end of series
type Forecaster interface {
	Forecast(ctx context.Context, series []analytics.MinuteCount, periods int) ([]Prediction, error)
}

// Linear fits a least-squares trend over minute offsets and widens it by the
// residual spread. Counts are clamped at zero.
type Linear struct{}

// NewLinear creates a linear trend forecaster
func NewLinear() *Linear {
	return &Linear{}
}

func (l *Linear) Forecast(ctx context.Context, series []analytics.MinuteCount, periods int) ([]Prediction, error) {
	if periods < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidPeriods, periods)
	}
	if len(series) < MinHistory {
		return nil, fmt.Errorf("%w: have %d minutes, need %d", ErrInsufficientHistory, len(series), MinHistory)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	origin := series[0].Minute
	observed := make(stats.Series, len(series))
	for i, p := range series {
		observed[i] = stats.Coordinate{X: p.Minute.Sub(origin).Minutes(), Y: float64(p.Starts)}
	}

	fitted, err := stats.LinearRegression(observed)
	if err != nil {
		return nil, fmt.Errorf("failed to fit trend: %w", err)
	}

	first, last := fitted[0], fitted[len(fitted)-1]
	if last.X == first.X {
		return nil, fmt.Errorf("%w: all observations fall in one minute", ErrInsufficientHistory)
	}
	slope := (last.Y - first.Y) / (last.X - first.X)
	intercept := first.Y - slope*first.X

	residuals := make(stats.Float64Data, len(observed))
	for i := range observed {
		residuals[i] = observed[i].Y - fitted[i].Y
	}
	spread, err := residuals.StandardDeviationSample()
	if err != nil || math.IsNaN(spread) {
		spread = 0
	}
	band := interval80 * spread

	end := series[len(series)-1].Minute
	predictions := make([]Prediction, 0, periods)
	for k := 1; k <= periods; k++ {
		ts := end.Add(time.Duration(k) * time.Minute)
		yhat := intercept + slope*ts.Sub(origin).Minutes()
		predictions = append(predictions, Prediction{
			TS:        ts,
			Yhat:      math.Max(0, yhat),
			YhatLower: math.Max(0, yhat-band),
			YhatUpper: math.Max(0, yhat+band),
		})
	}

	return predictions, nil
}
