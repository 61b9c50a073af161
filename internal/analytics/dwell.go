package analytics

import (
	"github.com/montanaflynn/stats"

	"github.com/BarkinBalci/viewer-analytics-service/internal/domain"
)

// DwellSummary describes the dwell distribution of a set of sessions
type DwellSummary struct {
	Sessions  int
	Churned   int
	Censored  int
	MeanSec   float64
	MedianSec float64
	P90Sec    float64
}

// DwellStats summarizes sessions; an empty input yields the zero summary
func DwellStats(sessions []domain.Session) DwellSummary {
	summary := DwellSummary{Sessions: len(sessions)}
	if len(sessions) == 0 {
		return summary
	}

	dwell := make(stats.Float64Data, 0, len(sessions))
	for _, s := range sessions {
		if s.Churned {
			summary.Churned++
		} else {
			summary.Censored++
		}
		dwell = append(dwell, s.DwellSec)
	}

	// stats only errors on empty input, which is excluded above
	summary.MeanSec, _ = dwell.Mean()
	summary.MedianSec, _ = dwell.Median()

	p90, err := dwell.Percentile(90)
	if err != nil {
		p90, _ = dwell.Max()
	}
	summary.P90Sec = p90

	return summary
}
