package recorder

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const sessionTimeLayout = "20060102_150405"

// Session is the in-memory bookkeeping for one running recording.
// Counters are written by the owning worker only.
type Session struct {
	ID              string
	RecordingID     uuid.UUID
	CameraID        string
	UserID          *uuid.UUID
	StartedAt       time.Time
	DurationMinutes *int

	segment atomic.Int64
	frames  atomic.Int64
	bytes   atomic.Int64
}

func newSession(recordingID uuid.UUID, cameraID string, userID *uuid.UUID, start time.Time, durationMinutes *int) *Session {
	s := &Session{
		ID:              sessionID(cameraID, start),
		RecordingID:     recordingID,
		CameraID:        cameraID,
		UserID:          userID,
		StartedAt:       start,
		DurationMinutes: durationMinutes,
	}
	s.segment.Store(1)
	return s
}

func sessionID(cameraID string, start time.Time) string {
	return fmt.Sprintf("%s_%s", cameraID, start.UTC().Format(sessionTimeLayout))
}

// Budget returns the requested run length, or 0 for a continuous recording.
func (s *Session) Budget() time.Duration {
	if s.DurationMinutes == nil {
		return 0
	}
	return time.Duration(*s.DurationMinutes) * time.Minute
}

func (s *Session) Segment() int  { return int(s.segment.Load()) }
func (s *Session) Frames() int64 { return s.frames.Load() }
func (s *Session) Bytes() int64  { return s.bytes.Load() }

func (s *Session) addFrame(n int) {
	s.frames.Add(1)
	s.bytes.Add(int64(n))
}

// ActiveRecording is a point-in-time view of a running session.
type ActiveRecording struct {
	CameraID        string     `json:"camera_id"`
	RecordingID     uuid.UUID  `json:"recording_id"`
	SessionID       string     `json:"session_id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	DurationSeconds int        `json:"duration_seconds"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	CurrentSegment  int        `json:"current_segment"`
	TotalFrames     int64      `json:"total_frames"`
	TotalSizeBytes  int64      `json:"total_size_bytes"`
	Stopping        bool       `json:"stopping,omitempty"`
}

func (s *Session) snapshot(now time.Time) ActiveRecording {
	elapsed := now.Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return ActiveRecording{
		CameraID:        s.CameraID,
		RecordingID:     s.RecordingID,
		SessionID:       s.ID,
		UserID:          s.UserID,
		StartTime:       s.StartedAt,
		DurationSeconds: int(elapsed.Seconds()),
		DurationMinutes: s.DurationMinutes,
		CurrentSegment:  s.Segment(),
		TotalFrames:     s.Frames(),
		TotalSizeBytes:  s.Bytes(),
	}
}
