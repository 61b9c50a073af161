package dto

// PublishEventRequest represents one viewer event as sent by a producer.
// TS is optional and defaults to the time of publishing.
type PublishEventRequest struct {
	TS        string `json:"ts,omitempty" example:"2025-06-01T12:00:00Z"`
	ViewerID  string `json:"viewer_id" binding:"required" example:"u482913"`
	VideoID   string `json:"video_id" binding:"required" example:"v042"`
	EventType string `json:"event_type" binding:"required,oneof=view_start heartbeat view_end" example:"view_start"`
	Country   string `json:"country,omitempty" example:"DE"`
}

// PublishEventsBulkRequest represents a publish bulk event request
type PublishEventsBulkRequest struct {
	Events []PublishEventRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// AnalyticsQuery carries the optional window parameters shared by the query endpoints.
// Durations use Go syntax ("15m", "60s"); Now is RFC3339 and defaults to the server clock.
type AnalyticsQuery struct {
	Now     string `form:"now" example:"2025-06-01T12:00:00Z"`
	Window  string `form:"window" example:"15m"`
	Step    string `form:"step" example:"1s"`
	Horizon string `form:"horizon" example:"60s"`
	K       int    `form:"k" example:"10"`
	Periods int    `form:"periods" example:"60"`
}
