package dto

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"window must be positive"`
}

// PublishEventResponse represents a successful event publish response
type PublishEventResponse struct {
	Status string `json:"status" example:"accepted"`
}

// PublishBulkEventsResponse represents a bulk publish response
type PublishBulkEventsResponse struct {
	Accepted int      `json:"accepted" example:"5"`
	Rejected int      `json:"rejected" example:"0"`
	Errors   []string `json:"errors,omitempty" example:"event 3: unknown event type"`
}

// KPIsResponse holds the three live indicators
type KPIsResponse struct {
	Now           time.Time `json:"now"`
	ActiveViewers int       `json:"active_viewers" example:"1240"`
	EventsPerSec  float64   `json:"events_per_sec" example:"35.4"`
	AvgDwellSec   float64   `json:"avg_dwell_sec" example:"184.2"`
	AvgDwellMin   float64   `json:"avg_dwell_min" example:"3.07"`
}

// ConcurrencyPoint is one sample of the rolling concurrency series
type ConcurrencyPoint struct {
	Sec        time.Time `json:"sec"`
	Concurrent int       `json:"concurrent"`
}

// ConcurrencyResponse represents the rolling concurrency series
type ConcurrencyResponse struct {
	Now     time.Time          `json:"now"`
	Window  string             `json:"window" example:"15m0s"`
	Horizon string             `json:"horizon" example:"1m0s"`
	Points  []ConcurrencyPoint `json:"points"`
}

// RatePoint is the number of events observed within one second
type RatePoint struct {
	Sec    time.Time `json:"sec"`
	Events int       `json:"events"`
}

// EventsPerSecondResponse represents the per-second throughput series
type EventsPerSecondResponse struct {
	Now    time.Time   `json:"now"`
	Window string      `json:"window" example:"5m0s"`
	Points []RatePoint `json:"points"`
}

// CountryData is the distinct viewer count of one country
type CountryData struct {
	Country       string `json:"country" example:"US"`
	ActiveViewers int    `json:"active_viewers" example:"210"`
}

// CountriesResponse represents the top countries ranking
type CountriesResponse struct {
	Now       time.Time     `json:"now"`
	Window    string        `json:"window" example:"15m0s"`
	Countries []CountryData `json:"countries"`
}

// SessionData is one reconstructed viewing session
type SessionData struct {
	ViewerID string    `json:"viewer_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	DwellSec float64   `json:"dwell_sec"`
	Churned  bool      `json:"churned"`
}

// DwellSummaryData describes the dwell distribution of a session set
type DwellSummaryData struct {
	Sessions  int     `json:"sessions"`
	Churned   int     `json:"churned"`
	Censored  int     `json:"censored"`
	MeanSec   float64 `json:"mean_sec"`
	MedianSec float64 `json:"median_sec"`
	P90Sec    float64 `json:"p90_sec"`
}

// SessionsResponse represents reconstructed sessions of a window
type SessionsResponse struct {
	Now      time.Time        `json:"now"`
	Window   string           `json:"window" example:"24h0m0s"`
	Summary  DwellSummaryData `json:"summary"`
	Sessions []SessionData    `json:"sessions"`
}

// SurvivalPointData is one step of a survival curve
type SurvivalPointData struct {
	Sec      float64 `json:"sec"`
	Survival float64 `json:"survival"`
	AtRisk   int     `json:"at_risk"`
	Events   int     `json:"events"`
	Censored int     `json:"censored"`
}

// Survival fit status values
const (
	SurvivalStatusOK               = "ok"
	SurvivalStatusInsufficientData = "insufficient_data"
)

// SurvivalResponse represents a fitted survival curve, or its absence
type SurvivalResponse struct {
	Now       time.Time           `json:"now"`
	Window    string              `json:"window" example:"24h0m0s"`
	Status    string              `json:"status" example:"ok"`
	Sessions  int                 `json:"sessions"`
	Churned   int                 `json:"churned"`
	Censored  int                 `json:"censored"`
	MedianSec *float64            `json:"median_sec,omitempty"`
	Points    []SurvivalPointData `json:"points,omitempty"`
}

// MinuteCountData is the number of view starts within one minute
type MinuteCountData struct {
	TS     time.Time `json:"ts"`
	Starts int       `json:"starts"`
}

// PredictionData is one forecasted minute
type PredictionData struct {
	TS        time.Time `json:"ds"`
	Yhat      float64   `json:"yhat"`
	YhatLower float64   `json:"yhat_lower"`
	YhatUpper float64   `json:"yhat_upper"`
}

// Forecast status values
const (
	ForecastStatusOK                  = "ok"
	ForecastStatusUnavailable         = "unavailable"
	ForecastStatusInsufficientHistory = "insufficient_history"
	ForecastStatusFailed              = "failed"
)

// StartsPerMinuteResponse represents observed starts per minute and an optional forecast
type StartsPerMinuteResponse struct {
	Now            time.Time         `json:"now"`
	Window         string            `json:"window" example:"24h0m0s"`
	Observed       []MinuteCountData `json:"observed"`
	Forecast       []PredictionData  `json:"forecast,omitempty"`
	ForecastStatus string            `json:"forecast_status" example:"ok"`
}

// OverviewResponse bundles the live dashboard panels
type OverviewResponse struct {
	KPIs      KPIsResponse      `json:"kpis"`
	Countries CountriesResponse `json:"countries"`
	Survival  SurvivalResponse  `json:"survival"`
}
