package daemon

import "time"

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"startedAt"`
}

// Envelope is the message wrapper posted to /api/message. Type selects
// the command; the remaining fields are command-specific.
type Envelope struct {
	Type string `json:"type"`
}

// Command payloads.

type setTrackingPayload struct {
	Enabled bool `json:"enabled"`
}

type setModePayload struct {
	Mode string `json:"mode"`
}

type setIdleTimeoutPayload struct {
	Minutes int `json:"minutes"`
}

type setDebugPayload struct {
	Enabled bool `json:"enabled"`
}

type setQualityThresholdsPayload struct {
	MinRows             int     `json:"minRows"`
	MinClassRows        int     `json:"minClassRows"`
	MinResponseRate     float64 `json:"minResponseRate"`
	MaxDisagreementRate float64 `json:"maxDisagreementRate"`
}

type clearTodayDomainPayload struct {
	Domain string `json:"domain"`
}

type activityPingPayload struct {
	TabID        string `json:"tabId"`
	ActivityType string `json:"activityType"`
}
