package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/db/bunx"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/uptrace/bun"
)

// BunUserRepository implements UserRepository using Bun ORM.
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository.
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user into the database. Generates an id if the
// caller left it empty, since SQLite deployments have no gen_random_uuid().
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}
	_, err := r.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID.
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("user %s not found", id)
		}
		return nil, fmt.Errorf("get user by ID: %w", err)
	}
	return user, nil
}

// GetByIdentifier looks the user up by username, email, or phone number in a
// single OR query; no one of the three columns takes precedence over the
// others.
func (r *BunUserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("username = ?", identifier).
		WhereOr("email = ?", identifier).
		WhereOr("phone_number = ?", identifier).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("user %s not found", identifier)
		}
		return nil, fmt.Errorf("get user by identifier: %w", err)
	}
	return user, nil
}

// UpdateLastLogin updates the last_login_at timestamp for a user.
func (r *BunUserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// SetPasswordHash updates the stored bcrypt hash for a user's credentials.
func (r *BunUserRepository) SetPasswordHash(ctx context.Context, id string, passwordHash string) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	return nil
}
