package domain

import "time"

// Session is one reconstructed viewing interval of a viewer. It is derived
// from a snapshot of events and a reference instant and is never persisted.
type Session struct {
	ViewerID string    `json:"viewer_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	DwellSec float64   `json:"dwell_sec"`
	// Churned is true when a view_end was observed; false means right-censored at now.
	Churned bool `json:"churned"`
}
