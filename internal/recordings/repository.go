package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/internal/recorder"
)

const recordingColumns = `id, camera_id, user_id, filename, file_path, kind, duration, file_size, metadata, created_at, ended_at`

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new recording when a session starts. rec.CreatedAt is kept as the start time.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO recordings (camera_id, user_id, filename, file_path, kind, duration, file_size, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	return r.pool.QueryRow(ctx, q, rec.CameraID, rec.UserID, rec.Filename, rec.FilePath, string(rec.Kind), rec.Duration, rec.FileSize, meta, rec.CreatedAt).
		Scan(&rec.ID)
}

// AttachFile records the first segment of a running recording.
func (r *Repository) AttachFile(ctx context.Context, id uuid.UUID, filename, path string) error {
	const q = `UPDATE recordings SET filename = $1, file_path = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, filename, path, id)
	return err
}

// Finalize writes the closing fields of a recording in one statement.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int, fileSize int64, meta models.RecordingMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `UPDATE recordings SET ended_at = $1, duration = $2, file_size = $3, metadata = $4 WHERE id = $5`
	tag, err := r.pool.Exec(ctx, q, endedAt, durationSec, fileSize, raw, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize %s: %w", id, recorder.ErrRecordingDeleted)
	}
	return nil
}

// GetByID returns a recording by ID, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListFilter narrows List. CameraIDs nil means every camera; an empty non-nil slice matches nothing.
type ListFilter struct {
	CameraID  string
	Kind      models.RecordingKind
	From      *time.Time
	To        *time.Time
	CameraIDs []string
	Page      int
	PerPage   int
}

// Page is one page of recordings, newest first.
type Page struct {
	Recordings []models.Recording `json:"recordings"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	Pages      int                `json:"pages"`
}

// MaxPerPage caps page size.
const MaxPerPage = 100

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
}

func (f ListFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CameraID != "" {
		add("camera_id = $%d", f.CameraID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if f.CameraIDs != nil {
		add("camera_id = ANY($%d)", f.CameraIDs)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns recordings matching f, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) (*Page, error) {
	f.normalize()
	where, args := f.where()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recordings`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count recordings: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM recordings%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		recordingColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, q, append(args, f.PerPage, (f.Page-1)*f.PerPage)...)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	list, err := collectRecordings(rows)
	if err != nil {
		return nil, err
	}
	pages := int((total + int64(f.PerPage) - 1) / int64(f.PerPage))
	return &Page{Recordings: list, Total: total, Page: f.Page, PerPage: f.PerPage, Pages: pages}, nil
}

// ListCreatedBefore returns recordings with created_at strictly before cutoff.
func (r *Repository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE created_at < $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	list, err := collectRecordings(rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Recording, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out, nil
}

// DeleteMany removes the given recordings in a single transaction.
func (r *Repository) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM recordings WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete recordings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes one recording. It reports whether a row existed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Totals aggregates counts by kind and the finalized size and duration sums.
func (r *Repository) Totals(ctx context.Context) (*models.RecordingTotals, error) {
	const q = `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'manual'),
			COUNT(*) FILTER (WHERE kind = 'continuous'),
			COALESCE(SUM(file_size), 0)::BIGINT,
			COALESCE(SUM(duration), 0)::BIGINT
		FROM recordings`
	var t models.RecordingTotals
	if err := r.pool.QueryRow(ctx, q).Scan(&t.Total, &t.Manual, &t.Continuous, &t.SizeBytes, &t.DurationSeconds); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var kind string
	var meta []byte
	if err := row.Scan(&rec.ID, &rec.CameraID, &rec.UserID, &rec.Filename, &rec.FilePath, &kind,
		&rec.Duration, &rec.FileSize, &meta, &rec.CreatedAt, &rec.EndedAt); err != nil {
		return nil, err
	}
	rec.Kind = models.RecordingKind(kind)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func collectRecordings(rows pgx.Rows) ([]models.Recording, error) {
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}
