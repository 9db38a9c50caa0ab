package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sg-security/backend/internal/models"
)

// segmentWriter owns one open video file of a session.
type segmentWriter struct {
	info models.SegmentInfo
	enc  Encoder
}

// segmentFilename names a segment file. attempt > 1 adds a suffix for a name already in use.
func segmentFilename(cameraID string, ordinal int, at time.Time, attempt int) string {
	stamp := at.UTC().Format(sessionTimeLayout)
	if attempt > 1 {
		return fmt.Sprintf("%s_segment_%03d_%s_%d.mp4", cameraID, ordinal, stamp, attempt)
	}
	return fmt.Sprintf("%s_segment_%03d_%s.mp4", cameraID, ordinal, stamp)
}

func openSegment(encoders EncoderFactory, dir, name string, ordinal, fps int, now time.Time) (*segmentWriter, error) {
	path := filepath.Join(dir, name)
	enc, err := encoders.Open(path, fps)
	if err != nil {
		return nil, fmt.Errorf("open encoder for %s: %w", name, err)
	}
	return &segmentWriter{
		info: models.SegmentInfo{
			Ordinal:   ordinal,
			Filename:  name,
			Path:      path,
			StartedAt: now,
		},
		enc: enc,
	}, nil
}

// append validates frame as a JPEG image and hands it to the encoder.
// Decode failures wrap ErrInvalidFrame; encoder failures wrap errEncoderFailed.
func (w *segmentWriter) append(frame []byte) error {
	if _, err := jpeg.Decode(bytes.NewReader(frame)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if err := w.enc.WriteFrame(frame); err != nil {
		return fmt.Errorf("%w: segment %s: %w", errEncoderFailed, w.info.Filename, err)
	}
	w.info.Frames++
	w.info.Bytes += int64(len(frame))
	return nil
}

// finalize closes the encoder and records the file size. The returned info is
// valid even when err is non-nil.
func (w *segmentWriter) finalize(now time.Time) (models.SegmentInfo, error) {
	w.info.EndedAt = now
	closeErr := w.enc.Close()
	fi, statErr := os.Stat(w.info.Path)
	switch {
	case statErr == nil:
		w.info.SizeOnDisk = fi.Size()
	case errors.Is(statErr, fs.ErrNotExist):
		statErr = nil
	}
	if closeErr != nil {
		return w.info, fmt.Errorf("close segment %s: %w", w.info.Filename, closeErr)
	}
	if statErr != nil {
		return w.info, fmt.Errorf("stat segment %s: %w", w.info.Filename, statErr)
	}
	return w.info, nil
}
