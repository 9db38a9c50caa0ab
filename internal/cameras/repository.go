package cameras

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sg-security/backend/internal/models"
)

const cameraColumns = `id, name, COALESCE(location,''), resolution, fps, recording_enabled, ai_analysis_enabled, is_active, created_at, last_seen`

// Repository reads camera records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a cameras repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCamera(row pgx.Row) (*models.Camera, error) {
	var c models.Camera
	err := row.Scan(&c.ID, &c.Name, &c.Location, &c.Resolution, &c.FPS, &c.RecordingEnabled, &c.AIAnalysisEnabled, &c.IsActive, &c.CreatedAt, &c.LastSeen)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID returns a camera, or nil if it is not registered.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Camera, error) {
	c, err := scanCamera(r.pool.QueryRow(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// List returns cameras ordered by id. A non-nil ids restricts the result.
func (r *Repository) List(ctx context.Context, ids []string) ([]models.Camera, error) {
	q := `SELECT ` + cameraColumns + ` FROM cameras`
	var args []any
	if ids != nil {
		q += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}
