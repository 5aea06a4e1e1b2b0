package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ModelConfigStatus is the lifecycle state of a ModelConfig row.
type ModelConfigStatus string

const (
	ModelConfigStatusDraft    ModelConfigStatus = "draft"
	ModelConfigStatusActive   ModelConfigStatus = "active"
	ModelConfigStatusArchived ModelConfigStatus = "archived"
)

// ModelConfig is a versioned snapshot of Casbin model DSL text.
// At most one row carries status = active at any time. This is enforced by
// ModelConfigRepository.SetActiveVersion only; the schema has no uniqueness
// constraint on status.
type ModelConfig struct {
	bun.BaseModel `bun:"table:model_configs,alias:mc"`

	ID         int64             `bun:",pk,autoincrement"`
	Version    int64             `bun:"version,notnull,unique"`
	Content    string            `bun:"content,notnull,type:text"`
	Status     ModelConfigStatus `bun:"status,notnull,type:varchar(20)"`
	Remark     string            `bun:"remark"`
	CreatedBy  string            `bun:"created_by,notnull"`
	CreatedAt  time.Time         `bun:"created_at,notnull,default:current_timestamp"`
	ApprovedBy string            `bun:"approved_by"`
	ApprovedAt *time.Time        `bun:"approved_at"`
}
