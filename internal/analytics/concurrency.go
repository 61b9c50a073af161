package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

const (
	// cancelCheckEvery is how many sweep steps run between context checks
	cancelCheckEvery = 256

	// MinConcurrencyStep is the finest sampling interval of the series
	MinConcurrencyStep = time.Second
	// MaxConcurrencyPoints caps window/step, one day at the finest step
	MaxConcurrencyPoints = 86400
)

// ConcurrencyOptions parameterizes RollingConcurrency
type ConcurrencyOptions struct {
	// Window bounds how far back events are considered
	Window time.Duration
	// Step is the sampling interval of the series
	Step time.Duration
	// Horizon is the trailing span a viewer counts as concurrent for
	Horizon time.Duration
}

// DefaultConcurrencyOptions samples every second over 15 minutes with a 60 second horizon
func DefaultConcurrencyOptions() ConcurrencyOptions {
	return ConcurrencyOptions{
		Window:  15 * time.Minute,
		Step:    time.Second,
		Horizon: 60 * time.Second,
	}
}

// Validate rejects non-positive durations, a step finer than a second or
// longer than the window, and series longer than MaxConcurrencyPoints.
func (o ConcurrencyOptions) Validate() error {
	switch {
	case o.Window <= 0:
		return invalidWindow("window must be positive, got %s", o.Window)
	case o.Step <= 0:
		return invalidWindow("step must be positive, got %s", o.Step)
	case o.Horizon <= 0:
		return invalidWindow("horizon must be positive, got %s", o.Horizon)
	case o.Step < MinConcurrencyStep:
		return invalidWindow("step must be at least %s, got %s", MinConcurrencyStep, o.Step)
	case o.Step > o.Window:
		return invalidWindow("step %s exceeds window %s", o.Step, o.Window)
	case o.Window/o.Step > MaxConcurrencyPoints:
		return invalidWindow("window %s at step %s exceeds %d points", o.Window, o.Step, MaxConcurrencyPoints)
	}
	return nil
}

// ConcurrencyPoint is the distinct viewer count over [Sec-horizon, Sec]
type ConcurrencyPoint struct {
	Sec        time.Time
	Concurrent int
}

// RollingConcurrency samples, from the earliest in-window event floored to
// the second up to now ceiled to the second, the number of distinct viewers
// with an event in [t-horizon, t]. The sweep slides over the events sorted by
// ts and keeps a per-viewer reference count, so each event enters and leaves
// the multiset once.
func RollingConcurrency(ctx context.Context, events []domain.Event, now time.Time, opts ConcurrencyOptions) ([]ConcurrencyPoint, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	inWindow := since(events, now.Add(-opts.Window))
	if len(inWindow) == 0 {
		return []ConcurrencyPoint{}, nil
	}

	sort.Slice(inWindow, func(i, j int) bool {
		return inWindow[i].Timestamp.Before(inWindow[j].Timestamp)
	})

	first := inWindow[0].Timestamp.UTC().Truncate(time.Second)
	last := ceilSecond(now.UTC())

	points := make([]ConcurrencyPoint, 0, max(0, int(last.Sub(first)/opts.Step)+1))
	active := make(map[string]int)
	head, tail := 0, 0

	for step, t := 0, first; !t.After(last); step, t = step+1, t.Add(opts.Step) {
		if step%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for head < len(inWindow) && !inWindow[head].Timestamp.After(t) {
			active[inWindow[head].ViewerID]++
			head++
		}

		lower := t.Add(-opts.Horizon)
		for tail < head && inWindow[tail].Timestamp.Before(lower) {
			id := inWindow[tail].ViewerID
			if active[id]--; active[id] == 0 {
				delete(active, id)
			}
			tail++
		}

		points = append(points, ConcurrencyPoint{Sec: t, Concurrent: len(active)})
	}

	return points, nil
}

func ceilSecond(t time.Time) time.Time {
	floor := t.Truncate(time.Second)
	if floor.Equal(t) {
		return floor
	}
	return floor.Add(time.Second)
}
