package recorder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/models"
)

// worker captures frames for one session until stopped, out of budget or failed.
type worker struct {
	c   *Coordinator
	e   *entry
	s   *Session
	log *zap.Logger

	seg      *segmentWriter
	segments []models.SegmentInfo
}

func (w *worker) run(ctx context.Context) {
	// Runs last, also when finish panics.
	defer func() {
		w.c.cleanup(w.s.CameraID, w.e)
		close(w.e.done)
		w.c.registry.workerExited(w.s.RecordingID)
	}()
	defer w.recoverPanic("finish")
	defer w.finish()
	defer w.recoverPanic("capture")
	if err := w.loop(ctx); err != nil {
		w.log.Error("recording worker failed", zap.Error(err))
	}
}

func (w *worker) recoverPanic(stage string) {
	if r := recover(); r != nil {
		w.log.Error("recording worker panic", zap.String("stage", stage), zap.Any("panic", r), zap.Stack("stack"))
	}
}

func (w *worker) loop(ctx context.Context) error {
	interval := time.Second / time.Duration(w.c.cfg.FPS)
	segLen := w.c.cfg.SegmentDuration()
	budget := w.s.Budget()

	for {
		if ctx.Err() != nil {
			return nil
		}
		now := w.c.clock.Now()
		if budget > 0 && now.Sub(w.s.StartedAt) >= budget {
			w.log.Info("recording duration reached", zap.Duration("budget", budget))
			return nil
		}
		if w.seg == nil || now.Sub(w.seg.info.StartedAt) > segLen {
			if err := w.rollover(now); err != nil {
				return err
			}
		}

		pause := interval
		if err := w.capture(ctx); err != nil {
			if errors.Is(err, errEncoderFailed) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("frame skipped", zap.Error(err))
			pause = w.c.cfg.RetryPause
		}
		if !w.sleep(ctx, pause) {
			return nil
		}
	}
}

// capture fetches one frame, bounded by FrameTimeout, and appends it to the open segment.
func (w *worker) capture(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, w.c.cfg.FrameTimeout)
	frame, err := w.c.frames.GetFrame(fetchCtx, w.s.CameraID)
	cancel()
	if err != nil {
		return fmt.Errorf("get frame: %w", err)
	}
	if len(frame) == 0 {
		return errNoFrame
	}
	if err := w.seg.append(frame); err != nil {
		return err
	}
	w.s.addFrame(len(frame))
	return nil
}

// rollover closes the current segment, if any, and opens the next one.
func (w *worker) rollover(now time.Time) error {
	if w.seg != nil {
		w.closeSegment(now)
		w.s.segment.Add(1)
	}
	ordinal := w.s.Segment()
	name := w.claimSegmentName(ordinal, now)
	seg, err := openSegment(w.c.encoders, w.c.cfg.VideosDir(), name, ordinal, w.c.cfg.FPS, now)
	if err != nil {
		w.c.registry.releaseFile(filepath.Join(w.c.cfg.VideosDir(), name))
		return fmt.Errorf("segment %d: %w", ordinal, err)
	}
	w.seg = seg
	w.log.Info("segment opened", zap.Int("segment", ordinal), zap.String("file", seg.info.Filename))

	if len(w.segments) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := w.c.store.AttachFile(ctx, w.s.RecordingID, seg.info.Filename, seg.info.Path); err != nil {
			w.log.Warn("attach recording file failed", zap.Error(err))
		}
	}
	return nil
}

// claimSegmentName returns the first name for this segment that no other writer holds
// and no file on disk uses, such as one left by a worker that outlived its stop.
func (w *worker) claimSegmentName(ordinal int, now time.Time) string {
	dir := w.c.cfg.VideosDir()
	for attempt := 1; ; attempt++ {
		name := segmentFilename(w.s.CameraID, ordinal, now, attempt)
		path := filepath.Join(dir, name)
		if !w.c.registry.claimFile(path) {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			w.c.registry.releaseFile(path)
			continue
		}
		return name
	}
}

func (w *worker) closeSegment(now time.Time) {
	info, err := w.seg.finalize(now)
	w.c.registry.releaseFile(info.Path)
	w.seg = nil
	w.segments = append(w.segments, info)
	if err != nil {
		w.log.Error("segment finalize failed", zap.Int("segment", info.Ordinal), zap.Error(err))
		return
	}
	w.log.Info("segment finalized",
		zap.Int("segment", info.Ordinal),
		zap.Int64("frames", info.Frames),
		zap.Int64("size", info.SizeOnDisk),
	)
	w.c.publish(Event{
		Type:        EventSegmentFinalized,
		CameraID:    w.s.CameraID,
		SessionID:   w.s.ID,
		RecordingID: w.s.RecordingID,
		Segment:     &info,
		At:          now,
	})
	if w.c.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := w.c.archive.EnqueueSegment(ctx, w.s.RecordingID, w.s.CameraID, info); err != nil {
			w.log.Warn("enqueue segment archive failed", zap.String("file", info.Filename), zap.Error(err))
		}
	}
}

// finish closes the open segment, finalizes the recording row and announces the stop.
// The registry entry is released by run afterwards.
func (w *worker) finish() {
	now := w.c.clock.Now()
	if w.seg != nil {
		w.closeSegment(now)
	}
	w.finalizeRecording(now)
	w.c.publish(Event{
		Type:        EventRecordingStopped,
		CameraID:    w.s.CameraID,
		SessionID:   w.s.ID,
		RecordingID: w.s.RecordingID,
		At:          now,
	})
}

func (w *worker) finalizeRecording(end time.Time) {
	dur := end.Sub(w.s.StartedAt)
	if dur < 0 {
		dur = 0
	}
	frames := w.s.Frames()
	achieved := 0.0
	if secs := dur.Seconds(); secs > 0 {
		achieved = math.Round(float64(frames)/secs*100) / 100
	}
	meta := models.RecordingMetadata{
		SessionID:         w.s.ID,
		RequestedDuration: w.s.DurationMinutes,
		TargetFPS:         w.c.cfg.FPS,
		TotalFrames:       frames,
		SegmentCount:      len(w.segments),
		AchievedFPS:       achieved,
		Segments:          w.segments,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := w.c.store.Finalize(ctx, w.s.RecordingID, end.UTC(), int(dur.Seconds()), w.s.Bytes(), meta); err != nil {
		if errors.Is(err, ErrRecordingDeleted) {
			w.removeOrphanSegments()
			return
		}
		w.log.Error("finalize recording failed", zap.String("recording_id", w.s.RecordingID.String()), zap.Error(err))
		return
	}
	w.log.Info("recording finalized",
		zap.Duration("duration", dur),
		zap.Int64("frames", frames),
		zap.Int("segments", len(w.segments)),
		zap.Int64("bytes", w.s.Bytes()),
	)
}

// removeOrphanSegments deletes the session's files once its row has been deleted
// underneath it; nothing else references them.
func (w *worker) removeOrphanSegments() {
	removed := 0
	for _, seg := range w.segments {
		if err := os.Remove(seg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.log.Warn("remove orphan segment failed", zap.String("path", seg.Path), zap.Error(err))
			continue
		}
		removed++
	}
	w.log.Warn("recording row deleted while recording, segment files removed",
		zap.String("recording_id", w.s.RecordingID.String()),
		zap.Int("segments", removed),
	)
}

func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.c.clock.After(d):
		return true
	}
}
