package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

func sessionsOf(churned, censored []float64) []domain.Session {
	var sessions []domain.Session
	for _, d := range churned {
		sessions = append(sessions, domain.Session{DwellSec: d, Churned: true})
	}
	for _, d := range censored {
		sessions = append(sessions, domain.Session{DwellSec: d, Churned: false})
	}
	return sessions
}

func TestFitSurvival_DropsOnlyAtChurnTimes(t *testing.T) {
	churned := []float64{10, 20, 20, 30, 40, 50, 60}
	censored := []float64{15, 25, 45}

	curve, ok := FitSurvival(sessionsOf(churned, censored))
	require.True(t, ok)

	assert.Equal(t, 10, curve.Sessions)
	assert.Equal(t, 7, curve.Churned)
	assert.Equal(t, 3, curve.Censored)

	churnTimes := map[float64]bool{}
	for _, d := range churned {
		churnTimes[d] = true
	}

	require.Equal(t, 0.0, curve.Points[0].Sec)
	require.Equal(t, 1.0, curve.Points[0].Survival)
	for i := 1; i < len(curve.Points); i++ {
		prev, cur := curve.Points[i-1], curve.Points[i]
		if churnTimes[cur.Sec] {
			assert.Less(t, cur.Survival, prev.Survival, "survival must drop at churn time %v", cur.Sec)
		} else {
			assert.Equal(t, prev.Survival, cur.Survival, "survival must hold at censor time %v", cur.Sec)
		}
	}

	expected := map[float64]float64{
		10: 0.9,
		15: 0.9,
		20: 0.9 * 6 / 8,
		30: 0.9 * 6 / 8 * 4 / 5,
		40: 0.9 * 6 / 8 * 4 / 5 * 3 / 4,
		50: 0.9 * 6 / 8 * 4 / 5 * 3 / 4 * 1 / 2,
		60: 0,
	}
	for sec, want := range expected {
		assert.InDelta(t, want, curve.At(sec), 1e-12, "S(%v)", sec)
	}

	// tied churns at 20 are simultaneous
	for _, p := range curve.Points {
		if p.Sec == 20 {
			assert.Equal(t, 2, p.Events)
			assert.Equal(t, 8, p.AtRisk)
		}
	}
}

func TestFitSurvival_StepFunction(t *testing.T) {
	curve, ok := FitSurvival(sessionsOf([]float64{10, 30}, []float64{20}))
	require.True(t, ok)

	assert.Equal(t, 1.0, curve.At(-5))
	assert.Equal(t, 1.0, curve.At(0))
	assert.Equal(t, 1.0, curve.At(9.99))
	assert.InDelta(t, 2.0/3, curve.At(10), 1e-12)
	assert.InDelta(t, 2.0/3, curve.At(25), 1e-12)
	assert.Equal(t, 0.0, curve.At(30))
	assert.Equal(t, 0.0, curve.At(1000))

	median, ok := curve.Median()
	assert.True(t, ok)
	assert.Equal(t, 30.0, median)
}

func TestFitSurvival_MedianUnreached(t *testing.T) {
	curve, ok := FitSurvival(sessionsOf([]float64{10}, []float64{20, 30, 40}))
	require.True(t, ok)

	_, reached := curve.Median()
	assert.False(t, reached)
}

func TestFitSurvival_ZeroDwellChurnKeepsOrigin(t *testing.T) {
	curve, ok := FitSurvival(sessionsOf([]float64{0, 0}, []float64{5}))
	require.True(t, ok)

	require.Len(t, curve.Points, 3)
	assert.Equal(t, SurvivalPoint{Sec: 0, Survival: 1.0, AtRisk: 3}, curve.Points[0])
	assert.Equal(t, 0.0, curve.Points[1].Sec)
	assert.InDelta(t, 1.0/3, curve.Points[1].Survival, 1e-9)
	assert.Equal(t, 2, curve.Points[1].Events)
	assert.Equal(t, 5.0, curve.Points[2].Sec)
	assert.Equal(t, 1, curve.Points[2].Censored)

	assert.InDelta(t, 1.0/3, curve.At(0), 1e-9)
	median, ok := curve.Median()
	require.True(t, ok)
	assert.Equal(t, 0.0, median)
}

func TestFitSurvival_ZeroDwellCensoredFoldsIntoOrigin(t *testing.T) {
	curve, ok := FitSurvival(sessionsOf([]float64{4, 8}, []float64{0}))
	require.True(t, ok)

	assert.Equal(t, SurvivalPoint{Sec: 0, Survival: 1.0, AtRisk: 3, Censored: 1}, curve.Points[0])
	assert.Equal(t, 4.0, curve.Points[1].Sec)
}

func TestFitSurvival_InsufficientData(t *testing.T) {
	tests := []struct {
		name     string
		sessions []domain.Session
	}{
		{"empty", nil},
		{"two sessions", sessionsOf([]float64{10, 20}, nil)},
		{"zero total dwell", sessionsOf([]float64{0, 0}, []float64{0})},
		{"unusable dwell", sessionsOf([]float64{10, math.NaN(), -1}, []float64{math.Inf(1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve, ok := FitSurvival(tt.sessions)
			assert.False(t, ok)
			assert.Nil(t, curve)
		})
	}
}

func TestFitSurvival_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 50; trial++ {
		var sessions []domain.Session
		for i := 0; i < 3+rng.Intn(60); i++ {
			sessions = append(sessions, domain.Session{
				DwellSec: float64(1 + rng.Intn(120)),
				Churned:  rng.Intn(3) > 0,
			})
		}

		curve, ok := FitSurvival(sessions)
		require.True(t, ok)
		require.Equal(t, 1.0, curve.Points[0].Survival)

		for i := 1; i < len(curve.Points); i++ {
			assert.LessOrEqual(t, curve.Points[i].Survival, curve.Points[i-1].Survival)
			assert.Greater(t, curve.Points[i].Sec, curve.Points[i-1].Sec)
			assert.GreaterOrEqual(t, curve.Points[i].Survival, 0.0)
		}
	}
}

func TestFitSurvival_FromReconstructedSessions(t *testing.T) {
	events := []domain.Event{
		ev("a", 0, domain.EventTypeViewStart),
		ev("a", 30, domain.EventTypeViewEnd),
		ev("b", 10, domain.EventTypeViewStart),
		ev("c", 20, domain.EventTypeViewStart),
		ev("c", 50, domain.EventTypeViewEnd),
	}

	curve, ok := FitSurvival(Reconstruct(events, at(60)))
	require.True(t, ok)

	assert.Equal(t, 2, curve.Churned)
	assert.Equal(t, 1, curve.Censored)
	assert.InDelta(t, 1.0/3, curve.At(30), 1e-12)
}
