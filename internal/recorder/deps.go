package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sg-security/backend/internal/models"
)

// RecordingStore persists Recording rows. Implemented by recordings.Repository.
type RecordingStore interface {
	// Create inserts rec and sets rec.ID. rec.CreatedAt is used as the recording start.
	Create(ctx context.Context, rec *models.Recording) error
	AttachFile(ctx context.Context, id uuid.UUID, filename, path string) error
	Finalize(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int, fileSize int64, meta models.RecordingMetadata) error
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Recording, error)
	// DeleteMany removes all rows in a single transaction.
	DeleteMany(ctx context.Context, ids []uuid.UUID) error
	Totals(ctx context.Context) (*models.RecordingTotals, error)
}

// CameraRegistry looks cameras up by id. A nil camera with a nil error means unknown.
type CameraRegistry interface {
	GetByID(ctx context.Context, id string) (*models.Camera, error)
}

// FrameSource returns one still image for a camera. A nil frame with a nil error means
// the camera produced nothing this time.
type FrameSource interface {
	GetFrame(ctx context.Context, cameraID string) ([]byte, error)
}

// Encoder turns a stream of JPEG frames into one video file.
type Encoder interface {
	WriteFrame(frame []byte) error
	Close() error
}

// EncoderFactory opens an encoder writing to path at the given frame rate.
type EncoderFactory interface {
	Open(path string, fps int) (Encoder, error)
}

// SegmentSink receives every segment after its file is closed (archive queue).
type SegmentSink interface {
	EnqueueSegment(ctx context.Context, recordingID uuid.UUID, cameraID string, seg models.SegmentInfo) error
}

// EventPublisher fans recording lifecycle events out to listeners.
type EventPublisher interface {
	PublishRecordingEvent(ctx context.Context, ev Event) error
}

// Clock is the subset of github.com/benbjohnson/clock the worker needs.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Event types published on the recording feed.
const (
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
	EventSegmentFinalized = "segment_finalized"
)

// Event is a recording lifecycle notification.
type Event struct {
	Type        string              `json:"type"`
	CameraID    string              `json:"camera_id"`
	SessionID   string              `json:"session_id"`
	RecordingID uuid.UUID           `json:"recording_id"`
	Segment     *models.SegmentInfo `json:"segment,omitempty"`
	At          time.Time           `json:"at"`
}
