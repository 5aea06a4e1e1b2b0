// Package repository exposes the persistence contracts for the policy
// administration core: rule tuples (C1), model-config versions (C2), token
// pairs (C8 storage), the event outbox (C10), and the minimal user lookup
// the token service needs.
package repository

import (
	"context"

	"github.com/castellan/iamcore/internal/db/models"
	"github.com/castellan/iamcore/internal/policymapper"
)

// Page is the pagination envelope returned by every paged read.
type Page[T any] struct {
	Current int
	Size    int
	Total   int
	Records []T
}

// PolicyFilter narrows pagePolicies; all fields are substring match except
// Ptype, which is exact.
type PolicyFilter struct {
	Ptype   string
	Subject string
	Object  string
	Action  string
	Domain  string
}

// RelationFilter narrows pageRelations; all fields are substring match.
type RelationFilter struct {
	ChildSubject string
	ParentRole   string
	Domain       string
}

// RuleRepository is the Rule Store (C1): read/write access to policy (p)
// and relation (g) tuples by stable integer id.
type RuleRepository interface {
	PagePolicies(ctx context.Context, current, size int, filter PolicyFilter) (Page[policymapper.PositionalTuple], error)
	PageRelations(ctx context.Context, current, size int, filter RelationFilter) (Page[policymapper.PositionalTuple], error)
	GetPolicyByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error)
	GetRelationByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error)

	CreatePolicy(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error)
	DeletePolicy(ctx context.Context, id int64) error
	CreatePolicies(ctx context.Context, tuples []policymapper.PositionalTuple) ([]int64, error)
	DeletePolicies(ctx context.Context, ids []int64) error
	CreateRelation(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error)
	DeleteRelation(ctx context.Context, id int64) error
}

// ModelConfigFilter narrows pageModelVersions.
type ModelConfigFilter struct {
	Status models.ModelConfigStatus
}

// ModelConfigPatch carries the fields updateDraft/publish/rollback may
// change; a nil field means "leave as-is", and a non-nil field is written
// even when it points at an empty string.
type ModelConfigPatch struct {
	Content    *string
	Remark     *string
	Status     *models.ModelConfigStatus
	ApprovedBy *string
	ApprovedAt *int64 // unix seconds; nil means unchanged
}

// ModelConfigRepository is the Model-Config Store (C2).
type ModelConfigRepository interface {
	PageModelVersions(ctx context.Context, current, size int, filter ModelConfigFilter) (Page[*models.ModelConfig], error)
	GetModelConfigByID(ctx context.Context, id int64) (*models.ModelConfig, error)
	GetNextVersion(ctx context.Context) (int64, error)
	GetActiveModelConfig(ctx context.Context) (*models.ModelConfig, error)
	CreateModelConfig(ctx context.Context, record *models.ModelConfig) error
	UpdateModelConfig(ctx context.Context, id int64, patch ModelConfigPatch) error
	// SetActiveVersion atomically promotes id to active and demotes the
	// previously active row (if any) to archived, in one transaction.
	SetActiveVersion(ctx context.Context, id int64) error
}

// TokenRepository is C8's storage for issued token pairs.
type TokenRepository interface {
	Create(ctx context.Context, pair *models.TokenPair) error
	GetByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	// MarkUsed performs a compare-and-set: it flips status unused->used only
	// if the row is still unused, returning false (no error) if another
	// caller already consumed it.
	MarkUsed(ctx context.Context, id string) (bool, error)
}

// OutboxRepository is the Event Outbox (C10): append-only, ordered per
// aggregate id.
type OutboxRepository interface {
	Append(ctx context.Context, event *models.OutboxEvent) error
	ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*models.OutboxEvent, error)
}

// UserRepository exposes the minimal identity lookup the token service
// needs: find by username, email, or phone number; update last-login.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	SetPasswordHash(ctx context.Context, id string, passwordHash string) error
}
