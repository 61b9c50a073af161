package analytics

import (
	"math"
	"sort"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// minSurvivalSessions is the smallest sample a curve is fitted on
const minSurvivalSessions = 3

// SurvivalPoint is one step of a Kaplan-Meier curve. Survival holds from Sec
// until the next point. AtRisk counts the sessions with dwell >= Sec; Events
// and Censored are the churned and censored sessions ending exactly at Sec.
type SurvivalPoint struct {
	Sec      float64
	Survival float64
	AtRisk   int
	Events   int
	Censored int
}

// SurvivalCurve is a non-increasing, right-continuous step function of elapsed seconds
type SurvivalCurve struct {
	Points   []SurvivalPoint
	Sessions int
	Churned  int
	Censored int
}

// FitSurvival fits the product-limit estimator on the dwell times of
// sessions, treating non-churned sessions as right-censored. It reports false
// when fewer than three usable sessions exist or their dwell sum is zero.
// Points[0] is always (0, 1.0); churn at zero dwell follows as a second
// point at Sec 0, which At and Median resolve to.
func FitSurvival(sessions []domain.Session) (*SurvivalCurve, bool) {
	usable := make([]domain.Session, 0, len(sessions))
	var total float64
	for _, s := range sessions {
		if s.DwellSec < 0 || math.IsNaN(s.DwellSec) || math.IsInf(s.DwellSec, 0) {
			continue
		}
		usable = append(usable, s)
		total += s.DwellSec
	}

	if len(usable) < minSurvivalSessions || total <= 0 {
		return nil, false
	}

	sort.Slice(usable, func(i, j int) bool {
		return usable[i].DwellSec < usable[j].DwellSec
	})

	curve := &SurvivalCurve{Sessions: len(usable)}
	curve.Points = append(curve.Points, SurvivalPoint{Sec: 0, Survival: 1.0, AtRisk: len(usable)})

	survival := 1.0
	atRisk := len(usable)
	for i := 0; i < len(usable); {
		t := usable[i].DwellSec

		deaths, censored := 0, 0
		for ; i < len(usable) && usable[i].DwellSec == t; i++ {
			if usable[i].Churned {
				deaths++
			} else {
				censored++
			}
		}

		survival *= 1 - float64(deaths)/float64(atRisk)
		curve.Churned += deaths
		curve.Censored += censored

		point := SurvivalPoint{
			Sec:      t,
			Survival: survival,
			AtRisk:   atRisk,
			Events:   deaths,
			Censored: censored,
		}

		// the origin stays at 1.0; a churn at 0 is its own point at Sec 0
		if t == 0 && deaths == 0 {
			curve.Points[0].Censored = censored
		} else {
			curve.Points = append(curve.Points, point)
		}

		atRisk -= deaths + censored
	}

	return curve, true
}

// At returns the survival probability after sec elapsed seconds
func (c *SurvivalCurve) At(sec float64) float64 {
	if sec < 0 || len(c.Points) == 0 {
		return 1.0
	}

	i := sort.Search(len(c.Points), func(i int) bool {
		return c.Points[i].Sec > sec
	})
	if i == 0 {
		return 1.0
	}
	return c.Points[i-1].Survival
}

// Median returns the first elapsed time at which survival drops to 0.5 or
// below, and false when the curve never gets there.
func (c *SurvivalCurve) Median() (float64, bool) {
	for _, p := range c.Points {
		if p.Survival <= 0.5 {
			return p.Sec, true
		}
	}
	return 0, false
}
