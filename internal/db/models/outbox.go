package models

import (
	"time"

	"github.com/uptrace/bun"
)

// OutboxEvent is an append-only domain event record. Ordering is guaranteed
// per (AggregateType, AggregateID) by ID ascending; delivery to downstream
// consumers (login-log writer, operation-log writer) is at-least-once and
// happens out-of-band of this table.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:event_outbox,alias:ob"`

	ID            int64     `bun:",pk,autoincrement"`
	AggregateType string    `bun:"aggregate_type,notnull,type:varchar(64)"`
	AggregateID   string    `bun:"aggregate_id,notnull,type:varchar(128)"`
	Type          string    `bun:"type,notnull,type:varchar(64)"`
	Payload       string    `bun:"payload,notnull,type:text"` // JSON-encoded event payload
	OccurredAt    time.Time `bun:"occurred_at,notnull,default:current_timestamp"`
	Delivered     bool      `bun:"delivered,notnull,default:false"`
}
