package analytics

import (
	"sort"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// MinuteCount is the number of view starts within the UTC minute starting at Minute
type MinuteCount struct {
	Minute time.Time
	Starts int
}

// StartsPerMinute buckets view_start events by minute in ascending order.
// Minutes without starts are omitted.
func StartsPerMinute(events []domain.Event) []MinuteCount {
	counts := make(map[time.Time]int)
	for _, e := range events {
		if e.EventType != domain.EventTypeViewStart {
			continue
		}
		counts[e.Timestamp.UTC().Truncate(time.Minute)]++
	}

	series := make([]MinuteCount, 0, len(counts))
	for minute, n := range counts {
		series = append(series, MinuteCount{Minute: minute, Starts: n})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Minute.Before(series[j].Minute)
	})

	return series
}
