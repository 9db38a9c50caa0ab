package recorder

import "errors"

var (
	ErrAlreadyRecording    = errors.New("camera is already being recorded")
	ErrCameraNotFound      = errors.New("camera not found")
	ErrRecordingDisabled   = errors.New("recording is disabled for camera")
	ErrInsufficientStorage = errors.New("insufficient storage space for recording")
	ErrNotRecording        = errors.New("no active recording for camera")
	ErrInvalidDuration     = errors.New("duration must be a positive number of minutes")

	// ErrRecordingDeleted is returned by a RecordingStore when the row being updated is gone.
	ErrRecordingDeleted = errors.New("recording no longer exists")

	// ErrInvalidFrame marks a frame that could not be decoded. Capture ticks skip it.
	ErrInvalidFrame = errors.New("invalid frame")

	errNoFrame       = errors.New("no frame returned")
	errEncoderFailed = errors.New("encoder failed")
)
