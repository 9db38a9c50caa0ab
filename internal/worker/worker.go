// Package worker archives finalized recording segments to object storage.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/internal/recordings"
	"github.com/sg-security/backend/pkg/queue"
	"github.com/sg-security/backend/pkg/storage"
)

// Uploader copies a local file to object storage. Implemented by storage.S3.
type Uploader interface {
	UploadFile(ctx context.Context, key, localPath string) (string, error)
}

// ArchiveStore records completed uploads. Implemented by recordings.ArchiveRepository.
type ArchiveStore interface {
	Upsert(ctx context.Context, a *models.RecordingArchive) error
}

// JobQueue is the consumer side of queue.Queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ArchiveProcessor uploads segment files named by archive jobs.
type ArchiveProcessor struct {
	archives ArchiveStore
	uploader Uploader
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewArchiveProcessor creates a segment archive processor.
func NewArchiveProcessor(archives ArchiveStore, uploader Uploader, q JobQueue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{archives: archives, uploader: uploader, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one archive job. A segment whose file is gone is dropped.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSegmentArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SegmentArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	seg := payload.Segment

	info, err := os.Stat(seg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("segment file missing, dropping archive job",
			zap.String("job_id", job.ID),
			zap.String("recording_id", payload.RecordingID.String()),
			zap.String("path", seg.Path),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat segment: %w", err)
	}

	key := storage.SegmentKey(payload.CameraID, payload.RecordingID.String(), seg.Filename)
	url, err := p.uploader.UploadFile(ctx, key, seg.Path)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	rec := &models.RecordingArchive{
		RecordingID: payload.RecordingID,
		SegmentPath: seg.Path,
		S3Key:       key,
		S3URL:       url,
		FileSize:    info.Size(),
	}
	err = p.archives.Upsert(ctx, rec)
	if errors.Is(err, recordings.ErrRecordingGone) {
		p.logger.Warn("recording deleted before archive completed", zap.String("recording_id", payload.RecordingID.String()), zap.String("s3_key", key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record archive: %w", err)
	}

	p.logger.Info("segment archived",
		zap.String("recording_id", payload.RecordingID.String()),
		zap.Int("segment", seg.Ordinal),
		zap.String("s3_key", key),
		zap.Int64("bytes", info.Size()),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ArchiveProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
