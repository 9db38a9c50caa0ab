package recordings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sg-security/backend/internal/models"
)

// ErrRecordingGone is returned by Upsert when the recording row no longer exists.
var ErrRecordingGone = errors.New("recording no longer exists")

// ArchiveRepository tracks segments copied to object storage.
type ArchiveRepository struct {
	pool *pgxpool.Pool
}

// NewArchiveRepository creates an archive repository.
func NewArchiveRepository(pool *pgxpool.Pool) *ArchiveRepository {
	return &ArchiveRepository{pool: pool}
}

// Upsert records an uploaded segment; a retried upload overwrites the earlier row.
func (r *ArchiveRepository) Upsert(ctx context.Context, a *models.RecordingArchive) error {
	const q = `INSERT INTO recording_archives (recording_id, segment_path, s3_key, s3_url, file_size)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recording_id, segment_path)
		DO UPDATE SET s3_key = EXCLUDED.s3_key, s3_url = EXCLUDED.s3_url, file_size = EXCLUDED.file_size, uploaded_at = NOW()
		RETURNING id, uploaded_at`
	err := r.pool.QueryRow(ctx, q, a.RecordingID, a.SegmentPath, a.S3Key, a.S3URL, a.FileSize).Scan(&a.ID, &a.UploadedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrRecordingGone
	}
	return err
}

// ListByRecording returns archived segments of a recording, oldest first.
func (r *ArchiveRepository) ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]models.RecordingArchive, error) {
	const q = `SELECT id, recording_id, segment_path, s3_key, s3_url, file_size, uploaded_at
		FROM recording_archives WHERE recording_id = $1 ORDER BY uploaded_at`
	rows, err := r.pool.Query(ctx, q, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RecordingArchive
	for rows.Next() {
		var a models.RecordingArchive
		if err := rows.Scan(&a.ID, &a.RecordingID, &a.SegmentPath, &a.S3Key, &a.S3URL, &a.FileSize, &a.UploadedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
