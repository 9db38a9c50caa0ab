package models

import "time"

// Camera is a registered capture device. IDs are gateway names such as "camera-1".
type Camera struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Location          string     `json:"location,omitempty"`
	Resolution        string     `json:"resolution"`
	FPS               int        `json:"fps"`
	RecordingEnabled  bool       `json:"recording_enabled"`
	AIAnalysisEnabled bool       `json:"ai_analysis_enabled"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
}

// SystemConfig is a persisted key/value setting.
type SystemConfig struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
