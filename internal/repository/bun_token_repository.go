package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/castellan/iamcore/internal/db/bunx"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/uptrace/bun"
)

// BunTokenRepository implements TokenRepository (C8 storage).
type BunTokenRepository struct {
	db *bun.DB
}

// NewBunTokenRepository creates a new Bun-based token repository.
func NewBunTokenRepository(db *bun.DB) *BunTokenRepository {
	return &BunTokenRepository{db: db}
}

// Create inserts a new token pair row with the status the caller set (the
// principal service always sets unused). Generates an id
// if the caller left it empty, since SQLite deployments have no
// gen_random_uuid().
func (r *BunTokenRepository) Create(ctx context.Context, pair *models.TokenPair) error {
	if pair.ID == "" {
		pair.ID = bunx.NewUUIDv7()
	}
	if _, err := r.db.NewInsert().Model(pair).Exec(ctx); err != nil {
		return fmt.Errorf("create token pair: %w", err)
	}
	return nil
}

// GetByRefreshToken looks up a token pair row by its refresh token value.
func (r *BunTokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	row := new(models.TokenPair)
	err := r.db.NewSelect().Model(row).Where("refresh_token = ?", refreshToken).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get token pair by refresh token: %w", err)
	}
	return row, nil
}

// MarkUsed performs the compare-and-set unused -> used. It returns false,
// nil if the row was already used by a concurrent caller (not an error at
// this layer; the caller decides whether that is a Conflict).
func (r *BunTokenRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.TokenPair)(nil)).
		Set("status = ?", models.TokenStatusUsed).
		Where("id = ? AND status = ?", id, models.TokenStatusUnused).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark token used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark token used rows affected: %w", err)
	}
	return affected == 1, nil
}
