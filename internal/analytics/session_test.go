package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func ev(viewer string, sec float64, et domain.EventType) domain.Event {
	return domain.Event{
		Timestamp: at(sec),
		ViewerID:  viewer,
		VideoID:   "v001",
		EventType: et,
		Country:   domain.DefaultCountry,
	}
}

func TestReconstruct_ObservedChurn(t *testing.T) {
	events := []domain.Event{
		ev("v1", 0, domain.EventTypeViewStart),
		ev("v1", 5, domain.EventTypeHeartbeat),
		ev("v1", 12, domain.EventTypeViewEnd),
	}

	sessions := Reconstruct(events, at(12))

	require.Len(t, sessions, 1)
	assert.Equal(t, "v1", sessions[0].ViewerID)
	assert.Equal(t, 12.0, sessions[0].DwellSec)
	assert.True(t, sessions[0].Churned)
	assert.Equal(t, at(0), sessions[0].Start)
	assert.Equal(t, at(12), sessions[0].End)
}

func TestReconstruct_CensoredAtNow(t *testing.T) {
	sessions := Reconstruct([]domain.Event{ev("v1", 0, domain.EventTypeViewStart)}, at(30))

	require.Len(t, sessions, 1)
	assert.Equal(t, 30.0, sessions[0].DwellSec)
	assert.False(t, sessions[0].Churned)
	assert.Equal(t, at(30), sessions[0].End)
}

func TestReconstruct_EmptyInput(t *testing.T) {
	sessions := Reconstruct(nil, t0)

	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestReconstruct_DropsViewersWithoutStart(t *testing.T) {
	events := []domain.Event{
		ev("v1", 3, domain.EventTypeHeartbeat),
		ev("v1", 9, domain.EventTypeViewEnd),
		ev("v2", 1, domain.EventTypeViewStart),
	}

	sessions := Reconstruct(events, at(10))

	require.Len(t, sessions, 1)
	assert.Equal(t, "v2", sessions[0].ViewerID)
}

func TestReconstruct_DropsNegativeDwell(t *testing.T) {
	events := []domain.Event{
		ev("v1", 20, domain.EventTypeViewStart),
		ev("v1", 10, domain.EventTypeViewEnd),
		ev("v2", 50, domain.EventTypeViewStart),
	}

	sessions := Reconstruct(events, at(40))

	assert.Empty(t, sessions, "an end before the start and a start after now are both unreconstructable")
}

func TestReconstruct_CollapsesRepeatedSessions(t *testing.T) {
	events := []domain.Event{
		ev("v1", 0, domain.EventTypeViewStart),
		ev("v1", 10, domain.EventTypeViewEnd),
		ev("v1", 100, domain.EventTypeViewStart),
		ev("v1", 130, domain.EventTypeViewEnd),
	}

	sessions := Reconstruct(events, at(200))

	require.Len(t, sessions, 1)
	assert.Equal(t, 130.0, sessions[0].DwellSec, "earliest start to latest end")
	assert.True(t, sessions[0].Churned)
}

func TestReconstruct_OrderIndependentAndIdempotent(t *testing.T) {
	var events []domain.Event
	for i, viewer := range []string{"c", "a", "d", "b"} {
		base := float64(i * 7)
		events = append(events,
			ev(viewer, base, domain.EventTypeViewStart),
			ev(viewer, base+3, domain.EventTypeHeartbeat))
		if i%2 == 0 {
			events = append(events, ev(viewer, base+20, domain.EventTypeViewEnd))
		}
	}
	now := at(60)

	first := Reconstruct(events, now)
	second := Reconstruct(events, now)
	assert.Equal(t, first, second)

	shuffled := append([]domain.Event(nil), events...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	assert.Equal(t, first, Reconstruct(shuffled, now))

	ids := make([]string, len(first))
	for i, s := range first {
		ids[i] = s.ViewerID
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}
