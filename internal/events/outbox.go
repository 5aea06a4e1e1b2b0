package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/castellan/iamcore/internal/db/models"
)

// OutboxRepository is the subset of repository.OutboxRepository this
// package depends on, declared locally to avoid an import cycle between
// internal/repository and internal/events.
type OutboxRepository interface {
	Append(ctx context.Context, event *models.OutboxEvent) error
}

// Publisher serializes Event values into OutboxEvent rows.
type Publisher struct {
	repo OutboxRepository
}

// NewPublisher creates a Publisher backed by repo.
func NewPublisher(repo OutboxRepository) *Publisher {
	return &Publisher{repo: repo}
}

// Publish appends ev to the outbox as a JSON-encoded payload.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	row := &models.OutboxEvent{
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		Type:          string(ev.Type),
		Payload:       string(payload),
	}
	if err := p.repo.Append(ctx, row); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}
