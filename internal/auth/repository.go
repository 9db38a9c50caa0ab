package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sg-security/backend/internal/models"
)

const userColumns = `id, username, email, password_hash, role, assigned_cameras, is_active, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &role, &u.AssignedCameras, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// GetByID returns a user by ID, or nil if none.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByLogin returns a user by username or email, or nil if none.
func (r *Repository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, login))
}

// List returns all users for admins.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u.ToPublic())
	}
	return list, rows.Err()
}

// CreateUserParams holds the fields of a new user.
type CreateUserParams struct {
	Username        string
	Email           string
	PasswordHash    string
	Role            models.Role
	AssignedCameras []string
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	cams := p.AssignedCameras
	if cams == nil {
		cams = []string{}
	}
	const q = `INSERT INTO users (username, email, password_hash, role, assigned_cameras)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, p.Username, p.Email, p.PasswordHash, string(p.Role), cams))
}

// ScopeFor resolves the cameras userID may access.
func (r *Repository) ScopeFor(ctx context.Context, userID uuid.UUID, role models.Role) (Scope, error) {
	if role.IsAdmin() {
		return Scope{All: true}, nil
	}
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return Scope{}, err
	}
	if u == nil || !u.IsActive {
		return Scope{Cameras: []string{}}, nil
	}
	return ScopeOf(u), nil
}
