package admin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinia-sante/clinia/internal/shared/errors"
	"github.com/clinia-sante/clinia/internal/shared/metrics"
)

// Repository provides database operations for admin users
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new admin user repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByUsername finds an admin user by username
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("find_admin_user", time.Since(start)) }()

	query := `
		SELECT id, username, password_hash, created_at
		FROM admin.admin_users
		WHERE username = $1`

	u := &User{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("admin user", username)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find admin user")
	}

	return u, nil
}

// Create inserts a new admin user with a bcrypt-hashed password
func (r *Repository) Create(ctx context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	query := `
		INSERT INTO admin.admin_users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.pool.Exec(ctx, query, u.ID, u.Username, u.PasswordHash, u.CreatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to create admin user")
	}

	return u, nil
}
