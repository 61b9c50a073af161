// Package analytics reconstructs viewing sessions and computes windowed
// aggregates and survival curves over snapshots of the event log. Every
// function is pure: results depend only on the events and the reference
// instant passed in.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

type viewerBounds struct {
	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
}

// Reconstruct derives one session per viewer from events: the earliest
// view_start opens it and the latest view_end closes it. Viewers without a
// view_start are dropped; sessions without a view_end are censored at now.
// Several start/end pairs of one viewer collapse into a single session.
// The result is sorted by viewer_id.
func Reconstruct(events []domain.Event, now time.Time) []domain.Session {
	if len(events) == 0 {
		return []domain.Session{}
	}

	bounds := make(map[string]*viewerBounds)
	for _, e := range events {
		b, ok := bounds[e.ViewerID]
		if !ok {
			b = &viewerBounds{}
			bounds[e.ViewerID] = b
		}

		switch e.EventType {
		case domain.EventTypeViewStart:
			if !b.hasStart || e.Timestamp.Before(b.start) {
				b.start = e.Timestamp
				b.hasStart = true
			}
		case domain.EventTypeViewEnd:
			if !b.hasEnd || e.Timestamp.After(b.end) {
				b.end = e.Timestamp
				b.hasEnd = true
			}
		case domain.EventTypeHeartbeat:
			// presence only
		}
	}

	sessions := make([]domain.Session, 0, len(bounds))
	for viewerID, b := range bounds {
		if !b.hasStart {
			continue
		}

		end := now
		if b.hasEnd {
			end = b.end
		}

		dwell := end.Sub(b.start).Seconds()
		if dwell < 0 || math.IsNaN(dwell) || math.IsInf(dwell, 0) {
			continue
		}

		sessions = append(sessions, domain.Session{
			ViewerID: viewerID,
			Start:    b.start,
			End:      end,
			DwellSec: dwell,
			Churned:  b.hasEnd,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ViewerID < sessions[j].ViewerID
	})

	return sessions
}
