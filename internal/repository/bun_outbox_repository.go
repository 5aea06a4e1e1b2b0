package repository

import (
	"context"
	"fmt"

	"github.com/castellan/iamcore/internal/db/models"
	"github.com/uptrace/bun"
)

// BunOutboxRepository implements OutboxRepository (C10): append-only,
// ordered per aggregate id.
type BunOutboxRepository struct {
	db *bun.DB
}

// NewBunOutboxRepository creates a new Bun-based outbox repository.
func NewBunOutboxRepository(db *bun.DB) *BunOutboxRepository {
	return &BunOutboxRepository{db: db}
}

// Append inserts a new event row.
func (r *BunOutboxRepository) Append(ctx context.Context, event *models.OutboxEvent) error {
	if _, err := r.db.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// ListByAggregate returns events for one aggregate, in commit order.
func (r *BunOutboxRepository) ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*models.OutboxEvent, error) {
	var rows []*models.OutboxEvent
	err := r.db.NewSelect().
		Model(&rows).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list outbox events: %w", err)
	}
	return rows, nil
}
