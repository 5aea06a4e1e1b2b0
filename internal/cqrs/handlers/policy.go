// Package handlers binds the CQRS Bus's command/query registry to the
// concrete services (policy mutation, model-config, rule/model-config
// stores), constructor-injected per Design Notes §9's "replace field-level
// injection with constructor-provided interfaces" guidance.
package handlers

import (
	"context"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/cqrs"
	"github.com/castellan/iamcore/internal/policyadmin"
	"github.com/castellan/iamcore/internal/policymapper"
	"github.com/castellan/iamcore/internal/repository"
)

// PolicyHandlers binds PolicyCreate/PolicyDelete/PolicyBatch/RelationCreate/
// RelationDelete to policyadmin.Service.
type PolicyHandlers struct {
	mutation *policyadmin.Service
}

// NewPolicyHandlers creates a PolicyHandlers.
func NewPolicyHandlers(mutation *policyadmin.Service) *PolicyHandlers {
	return &PolicyHandlers{mutation: mutation}
}

func (h *PolicyHandlers) PolicyCreate(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.PolicyCreate)
	id, err := h.mutation.CreatePolicy(ctx, cmd.Policy)
	return id, err
}

func (h *PolicyHandlers) PolicyDelete(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.PolicyDelete)
	return nil, h.mutation.DeletePolicy(ctx, cmd.ID)
}

func (h *PolicyHandlers) PolicyBatch(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.PolicyBatch)
	if len(cmd.Policies) == 0 {
		return nil, apperr.BadRequest("batch policies must not be empty")
	}

	var op policyadmin.BatchOperation
	switch cmd.Operation {
	case "add":
		op = policyadmin.BatchAdd
	case "delete":
		op = policyadmin.BatchDelete
	default:
		return nil, apperr.BadRequest("unknown batch operation %q", cmd.Operation)
	}

	return nil, h.mutation.BatchPolicies(ctx, cmd.Policies, op)
}

func (h *PolicyHandlers) RelationCreate(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.RelationCreate)
	id, err := h.mutation.CreateRelation(ctx, cmd.Relation)
	return id, err
}

func (h *PolicyHandlers) RelationDelete(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.RelationDelete)
	return nil, h.mutation.DeleteRelation(ctx, cmd.ID)
}

// PolicyQueryHandlers binds PagePolicies/PageRelations to the Rule Store.
type PolicyQueryHandlers struct {
	rules repository.RuleRepository
}

// NewPolicyQueryHandlers creates a PolicyQueryHandlers.
func NewPolicyQueryHandlers(rules repository.RuleRepository) *PolicyQueryHandlers {
	return &PolicyQueryHandlers{rules: rules}
}

func (h *PolicyQueryHandlers) PagePolicies(ctx context.Context, msg any) (any, error) {
	q := msg.(cqrs.PagePolicies)
	page, err := h.rules.PagePolicies(ctx, q.Current, q.Size, repository.PolicyFilter{
		Ptype: q.Ptype, Subject: q.Subject, Object: q.Object, Action: q.Action, Domain: q.Domain,
	})
	if err != nil {
		return nil, err
	}
	return toDtoPage(page), nil
}

func (h *PolicyQueryHandlers) PageRelations(ctx context.Context, msg any) (any, error) {
	q := msg.(cqrs.PageRelations)
	page, err := h.rules.PageRelations(ctx, q.Current, q.Size, repository.RelationFilter{
		ChildSubject: q.ChildSubject, ParentRole: q.ParentRole, Domain: q.Domain,
	})
	if err != nil {
		return nil, err
	}
	return toRelationDtoPage(page), nil
}

func toDtoPage(page repository.Page[policymapper.PositionalTuple]) repository.Page[policymapper.PolicyRuleDTO] {
	records := make([]policymapper.PolicyRuleDTO, len(page.Records))
	for i, t := range page.Records {
		records[i] = policymapper.ToDTO(t)
	}
	return repository.Page[policymapper.PolicyRuleDTO]{
		Current: page.Current, Size: page.Size, Total: page.Total, Records: records,
	}
}

func toRelationDtoPage(page repository.Page[policymapper.PositionalTuple]) repository.Page[policymapper.RoleRelationDTO] {
	records := make([]policymapper.RoleRelationDTO, len(page.Records))
	for i, t := range page.Records {
		records[i] = policymapper.RelationFromPositional(t)
	}
	return repository.Page[policymapper.RoleRelationDTO]{
		Current: page.Current, Size: page.Size, Total: page.Total, Records: records,
	}
}
