package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingKind distinguishes operator-requested captures from always-on ones.
type RecordingKind string

const (
	RecordingKindManual     RecordingKind = "manual"
	RecordingKindContinuous RecordingKind = "continuous"
)

// Valid reports whether k is a known kind.
func (k RecordingKind) Valid() bool {
	return k == RecordingKindManual || k == RecordingKindContinuous
}

// Recording is the durable record of one capture session.
// FilePath points at the first segment; the full segment list lives in Metadata.
type Recording struct {
	ID        uuid.UUID         `json:"id"`
	CameraID  string            `json:"camera_id"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	Filename  string            `json:"filename"`
	FilePath  string            `json:"file_path"`
	Kind      RecordingKind     `json:"recording_type"`
	Duration  int               `json:"duration"` // seconds
	FileSize  int64             `json:"file_size"`
	Metadata  RecordingMetadata `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
}

// Finalized reports whether the worker has written the closing fields.
func (r *Recording) Finalized() bool {
	return r.EndedAt != nil
}

// RecordingMetadata is stored as JSONB next to the recording row.
type RecordingMetadata struct {
	SessionID         string        `json:"session_id"`
	RequestedDuration *int          `json:"duration_minutes,omitempty"`
	TargetFPS         int           `json:"fps"`
	TotalFrames       int64         `json:"total_frames"`
	SegmentCount      int           `json:"segments"`
	AchievedFPS       float64       `json:"actual_fps"`
	Segments          []SegmentInfo `json:"segment_files,omitempty"`
}

// SegmentInfo describes one finished video file of a recording.
type SegmentInfo struct {
	Ordinal    int       `json:"ordinal"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Frames     int64     `json:"frames"`
	Bytes      int64     `json:"bytes"`        // encoded frame bytes handed to the encoder
	SizeOnDisk int64     `json:"size_on_disk"` // file size after the encoder closed
}

// SegmentPaths returns the distinct files backing r, FilePath first.
func (r *Recording) SegmentPaths() []string {
	seen := make(map[string]struct{}, len(r.Metadata.Segments)+1)
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(r.FilePath)
	for _, s := range r.Metadata.Segments {
		add(s.Path)
	}
	return out
}

// RecordingArchive is one segment uploaded to object storage.
type RecordingArchive struct {
	ID          uuid.UUID `json:"id"`
	RecordingID uuid.UUID `json:"recording_id"`
	SegmentPath string    `json:"segment_path"`
	S3Key       string    `json:"s3_key"`
	S3URL       string    `json:"s3_url"`
	FileSize    int64     `json:"file_size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// RecordingTotals aggregates persisted recordings for statistics.
type RecordingTotals struct {
	Total           int64 `json:"total_recordings"`
	Manual          int64 `json:"manual_recordings"`
	Continuous      int64 `json:"continuous_recordings"`
	SizeBytes       int64 `json:"total_recorded_size_bytes"`
	DurationSeconds int64 `json:"total_recorded_duration_seconds"`
}
