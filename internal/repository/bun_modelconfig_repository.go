package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/uptrace/bun"
)

// BunModelConfigRepository implements ModelConfigRepository (C2).
type BunModelConfigRepository struct {
	db *bun.DB
}

// NewBunModelConfigRepository creates a new Bun-based model-config repository.
func NewBunModelConfigRepository(db *bun.DB) *BunModelConfigRepository {
	return &BunModelConfigRepository{db: db}
}

// PageModelVersions returns model-config rows ordered by id ascending.
func (r *BunModelConfigRepository) PageModelVersions(ctx context.Context, current, size int, filter ModelConfigFilter) (Page[*models.ModelConfig], error) {
	if current < 1 {
		current = 1
	}
	if size < 1 {
		size = 20
	}

	q := r.db.NewSelect().Model((*models.ModelConfig)(nil))
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	total, err := q.Clone().Count(ctx)
	if err != nil {
		return Page[*models.ModelConfig]{}, fmt.Errorf("count model configs: %w", err)
	}

	var rows []*models.ModelConfig
	if err := q.Order("id ASC").Limit(size).Offset((current - 1) * size).Scan(ctx, &rows); err != nil {
		return Page[*models.ModelConfig]{}, fmt.Errorf("page model configs: %w", err)
	}

	return Page[*models.ModelConfig]{Current: current, Size: size, Total: total, Records: rows}, nil
}

// GetModelConfigByID returns the row with the given id, or NotFound.
func (r *BunModelConfigRepository) GetModelConfigByID(ctx context.Context, id int64) (*models.ModelConfig, error) {
	row := new(models.ModelConfig)
	err := r.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("model config %d not found", id)
		}
		return nil, fmt.Errorf("get model config: %w", err)
	}
	return row, nil
}

// GetNextVersion returns max(version)+1, or 1 if the table is empty.
func (r *BunModelConfigRepository) GetNextVersion(ctx context.Context) (int64, error) {
	var maxVersion sql.NullInt64
	err := r.db.NewSelect().
		Model((*models.ModelConfig)(nil)).
		ColumnExpr("MAX(version)").
		Scan(ctx, &maxVersion)
	if err != nil {
		return 0, fmt.Errorf("get next version: %w", err)
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return maxVersion.Int64 + 1, nil
}

// GetActiveModelConfig returns the single active row, or nil if none exists.
func (r *BunModelConfigRepository) GetActiveModelConfig(ctx context.Context) (*models.ModelConfig, error) {
	row := new(models.ModelConfig)
	err := r.db.NewSelect().Model(row).Where("status = ?", models.ModelConfigStatusActive).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active model config: %w", err)
	}
	return row, nil
}

// CreateModelConfig inserts a new row.
func (r *BunModelConfigRepository) CreateModelConfig(ctx context.Context, record *models.ModelConfig) error {
	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("create model config: %w", err)
	}
	return nil
}

// UpdateModelConfig applies patch to the row with the given id. NotFound if
// absent.
func (r *BunModelConfigRepository) UpdateModelConfig(ctx context.Context, id int64, patch ModelConfigPatch) error {
	q := r.db.NewUpdate().Model((*models.ModelConfig)(nil)).Where("id = ?", id)

	touched := false
	if patch.Content != nil {
		q = q.Set("content = ?", *patch.Content)
		touched = true
	}
	if patch.Remark != nil {
		q = q.Set("remark = ?", *patch.Remark)
		touched = true
	}
	if patch.Status != nil {
		q = q.Set("status = ?", *patch.Status)
		touched = true
	}
	if patch.ApprovedBy != nil {
		q = q.Set("approved_by = ?", *patch.ApprovedBy)
		touched = true
	}
	if patch.ApprovedAt != nil {
		q = q.Set("approved_at = ?", time.Unix(*patch.ApprovedAt, 0).UTC())
		touched = true
	}
	if !touched {
		return nil
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update model config: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update model config rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("model config %d not found", id)
	}
	return nil
}

// SetActiveVersion atomically promotes id to active and demotes whatever row
// was previously active to archived. NotFound if id does not exist.
func (r *BunModelConfigRepository) SetActiveVersion(ctx context.Context, id int64) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var target models.ModelConfig
		if err := tx.NewSelect().Model(&target).Where("id = ?", id).Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return apperr.NotFound("model config %d not found", id)
			}
			return fmt.Errorf("locate target model config: %w", err)
		}

		if _, err := tx.NewUpdate().
			Model((*models.ModelConfig)(nil)).
			Set("status = ?", models.ModelConfigStatusArchived).
			Where("status = ? AND id != ?", models.ModelConfigStatusActive, id).
			Exec(ctx); err != nil {
			return fmt.Errorf("demote previous active model config: %w", err)
		}

		if _, err := tx.NewUpdate().
			Model((*models.ModelConfig)(nil)).
			Set("status = ?", models.ModelConfigStatusActive).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("promote model config: %w", err)
		}

		return nil
	})
}
