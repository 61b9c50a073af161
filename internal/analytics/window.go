package analytics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// ErrInvalidWindow is returned for malformed window parameters before any computation
var ErrInvalidWindow = errors.New("invalid window parameters")

const (
	ActiveWindow = 60 * time.Second
	RateWindow   = 10 * time.Second

	DefaultDwellWindow     = 30 * time.Minute
	DefaultCountriesWindow = 15 * time.Minute
	DefaultTopCountries    = 10
	DefaultRateWindow      = 5 * time.Minute
)

// KPIs are the three live indicators
type KPIs struct {
	ActiveViewers int
	EventsPerSec  float64
	AvgDwellSec   float64
}

// CountryCount is the number of distinct viewers seen from one country
type CountryCount struct {
	Country string
	Viewers int
}

// RatePoint is the number of events within the second starting at Sec
type RatePoint struct {
	Sec    time.Time
	Events int
}

func invalidWindow(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidWindow, fmt.Sprintf(format, args...))
}

func since(events []domain.Event, from time.Time) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if !e.Timestamp.Before(from) {
			out = append(out, e)
		}
	}
	return out
}

// ActiveViewers counts distinct viewers with any event in the trailing minute
func ActiveViewers(events []domain.Event, now time.Time) int {
	from := now.Add(-ActiveWindow)
	viewers := make(map[string]struct{})
	for _, e := range events {
		if !e.Timestamp.Before(from) {
			viewers[e.ViewerID] = struct{}{}
		}
	}
	return len(viewers)
}

// EventsPerSecond is the event count of the trailing ten seconds divided by ten
func EventsPerSecond(events []domain.Event, now time.Time) float64 {
	from := now.Add(-RateWindow)
	n := 0
	for _, e := range events {
		if !e.Timestamp.Before(from) {
			n++
		}
	}
	return float64(n) / RateWindow.Seconds()
}

// AverageDwell is the mean dwell of the sessions reconstructed from the trailing window, 0 without sessions
func AverageDwell(events []domain.Event, now time.Time, window time.Duration) (float64, error) {
	if window <= 0 {
		return 0, invalidWindow("window must be positive, got %s", window)
	}

	sessions := Reconstruct(since(events, now.Add(-window)), now)
	if len(sessions) == 0 {
		return 0, nil
	}

	var total float64
	for _, s := range sessions {
		total += s.DwellSec
	}
	return total / float64(len(sessions)), nil
}

// Summarize computes the live KPIs with the default dwell window
func Summarize(events []domain.Event, now time.Time) KPIs {
	avg, _ := AverageDwell(events, now, DefaultDwellWindow)
	return KPIs{
		ActiveViewers: ActiveViewers(events, now),
		EventsPerSec:  EventsPerSecond(events, now),
		AvgDwellSec:   avg,
	}
}

// TopCountries ranks countries by distinct viewers in the trailing window,
// ties broken by country code, truncated to k.
func TopCountries(events []domain.Event, now time.Time, window time.Duration, k int) ([]CountryCount, error) {
	if window <= 0 {
		return nil, invalidWindow("window must be positive, got %s", window)
	}
	if k < 1 {
		return nil, invalidWindow("k must be at least 1, got %d", k)
	}

	from := now.Add(-window)
	viewers := make(map[string]map[string]struct{})
	for _, e := range events {
		if e.Timestamp.Before(from) {
			continue
		}
		set, ok := viewers[e.Country]
		if !ok {
			set = make(map[string]struct{})
			viewers[e.Country] = set
		}
		set[e.ViewerID] = struct{}{}
	}

	ranked := make([]CountryCount, 0, len(viewers))
	for country, set := range viewers {
		ranked = append(ranked, CountryCount{Country: country, Viewers: len(set)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Viewers != ranked[j].Viewers {
			return ranked[i].Viewers > ranked[j].Viewers
		}
		return ranked[i].Country < ranked[j].Country
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// EventsPerSecondSeries counts events per second in the trailing window.
// Only seconds that saw events are returned, in ascending order.
func EventsPerSecondSeries(events []domain.Event, now time.Time, window time.Duration) ([]RatePoint, error) {
	if window <= 0 {
		return nil, invalidWindow("window must be positive, got %s", window)
	}

	from := now.Add(-window)
	counts := make(map[time.Time]int)
	for _, e := range events {
		if e.Timestamp.Before(from) {
			continue
		}
		counts[e.Timestamp.UTC().Truncate(time.Second)]++
	}

	points := make([]RatePoint, 0, len(counts))
	for sec, n := range counts {
		points = append(points, RatePoint{Sec: sec, Events: n})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Sec.Before(points[j].Sec)
	})

	return points, nil
}
