package handlers

import (
	"context"
	"fmt"

	"github.com/castellan/iamcore/internal/cqrs"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/castellan/iamcore/internal/events"
	"github.com/castellan/iamcore/internal/modelconfig"
	"github.com/castellan/iamcore/internal/repository"
)

// ModelHandlers binds ModelDraftCreate/ModelDraftUpdate/ModelPublish/
// ModelRollback to modelconfig.Service, requests an enforcer reload after a
// successful publish/rollback — the store write and the reload are
// distinct steps per §4.5's mutate-then-reload pattern, with reload failure
// never masking a committed store write — and emits the corresponding
// domain event to the outbox after the reload (or, for draft creation,
// after the store write) completes.
type ModelHandlers struct {
	service *modelconfig.Service
	reload  Reloader
	publish Publisher
}

// Reloader is the subset of enforcer.Coordinator model handlers depend on.
type Reloader interface {
	Reload(ctx context.Context) bool
}

// Publisher is the subset of events.Publisher model handlers depend on.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// NewModelHandlers creates a ModelHandlers.
func NewModelHandlers(service *modelconfig.Service, reload Reloader, publish Publisher) *ModelHandlers {
	return &ModelHandlers{service: service, reload: reload, publish: publish}
}

func (h *ModelHandlers) ModelDraftCreate(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.ModelDraftCreate)
	row, err := h.service.CreateDraft(ctx, cmd.Content, cmd.Remark, cmd.UID)
	if err != nil {
		return nil, err
	}

	if err := h.publish.Publish(ctx, events.Event{
		Type:          events.ModelDraftCreated,
		AggregateType: events.AggregateModelConfig,
		AggregateID:   fmt.Sprint(row.ID),
		Payload:       map[string]any{"id": row.ID, "version": row.Version, "created_by": cmd.UID},
	}); err != nil {
		return nil, err
	}

	return toModelConfigDto(row), nil
}

func (h *ModelHandlers) ModelDraftUpdate(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.ModelDraftUpdate)
	return nil, h.service.UpdateDraft(ctx, cmd.ID, cmd.Content, cmd.Remark)
}

func (h *ModelHandlers) ModelPublish(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.ModelPublish)
	ok, err := h.service.PublishVersion(ctx, cmd.ID, cmd.UID)
	if err != nil {
		return nil, err
	}

	h.reload.Reload(ctx)

	if err := h.publish.Publish(ctx, events.Event{
		Type:          events.ModelPublished,
		AggregateType: events.AggregateModelConfig,
		AggregateID:   fmt.Sprint(cmd.ID),
		Payload:       map[string]any{"id": cmd.ID, "published_by": cmd.UID},
	}); err != nil {
		return nil, err
	}

	return ok, nil
}

func (h *ModelHandlers) ModelRollback(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.ModelRollback)
	ok, err := h.service.RollbackVersion(ctx, cmd.ID, cmd.UID)
	if err != nil {
		return nil, err
	}

	h.reload.Reload(ctx)

	if err := h.publish.Publish(ctx, events.Event{
		Type:          events.ModelRolledBack,
		AggregateType: events.AggregateModelConfig,
		AggregateID:   fmt.Sprint(cmd.ID),
		Payload:       map[string]any{"id": cmd.ID, "rolled_back_by": cmd.UID},
	}); err != nil {
		return nil, err
	}

	return ok, nil
}

// ModelQueryHandlers binds PageModelVersions/ModelVersionDetail/
// ModelVersionDiff to the Model-Config Store and Service.
type ModelQueryHandlers struct {
	store   repository.ModelConfigRepository
	service *modelconfig.Service
}

// NewModelQueryHandlers creates a ModelQueryHandlers.
func NewModelQueryHandlers(store repository.ModelConfigRepository, service *modelconfig.Service) *ModelQueryHandlers {
	return &ModelQueryHandlers{store: store, service: service}
}

func (h *ModelQueryHandlers) PageModelVersions(ctx context.Context, msg any) (any, error) {
	q := msg.(cqrs.PageModelVersions)
	page, err := h.store.PageModelVersions(ctx, q.Current, q.Size, repository.ModelConfigFilter{
		Status: models.ModelConfigStatus(q.Status),
	})
	if err != nil {
		return nil, err
	}

	records := make([]cqrs.ModelConfigDto, len(page.Records))
	for i, row := range page.Records {
		records[i] = toModelConfigDto(row)
	}
	return repository.Page[cqrs.ModelConfigDto]{
		Current: page.Current, Size: page.Size, Total: page.Total, Records: records,
	}, nil
}

func (h *ModelQueryHandlers) ModelVersionDetail(ctx context.Context, msg any) (any, error) {
	q := msg.(cqrs.ModelVersionDetail)
	row, err := h.store.GetModelConfigByID(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return toModelConfigDto(row), nil
}

func (h *ModelQueryHandlers) ModelVersionDiff(ctx context.Context, msg any) (any, error) {
	q := msg.(cqrs.ModelVersionDiff)
	result, err := h.service.Diff(ctx, q.SourceID, q.TargetID)
	if err != nil {
		return nil, err
	}
	return cqrs.ModelVersionDiffDto{
		SourceVersionID: result.SourceVersionID,
		TargetVersionID: result.TargetVersionID,
		Diff:            result.Diff,
	}, nil
}

func toModelConfigDto(row *models.ModelConfig) cqrs.ModelConfigDto {
	dto := cqrs.ModelConfigDto{
		ID:         row.ID,
		Content:    row.Content,
		Version:    row.Version,
		Status:     string(row.Status),
		Remark:     row.Remark,
		CreatedBy:  row.CreatedBy,
		CreatedAt:  row.CreatedAt.Unix(),
		ApprovedBy: row.ApprovedBy,
	}
	if row.ApprovedAt != nil {
		unix := row.ApprovedAt.Unix()
		dto.ApprovedAt = &unix
	}
	return dto
}
