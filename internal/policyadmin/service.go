// Package policyadmin implements the Policy Mutation Service (C5): the
// mutate-then-reload-then-publish pattern for policy rules and role
// relations, sitting on top of the Semantic Mapper (C3), the Rule Store
// (C1), the Enforcer Reload Coordinator (C6), and the Event Outbox (C10).
package policyadmin

import (
	"context"
	"fmt"

	"github.com/castellan/iamcore/internal/events"
	"github.com/castellan/iamcore/internal/policymapper"
	"github.com/castellan/iamcore/internal/repository"
)

// Reloader is the subset of enforcer.Coordinator this service depends on.
type Reloader interface {
	Reload(ctx context.Context) bool
}

// Publisher is the subset of events.Publisher this service depends on.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// BatchOperation selects add vs delete semantics for a batch request.
type BatchOperation string

const (
	BatchAdd    BatchOperation = "add"
	BatchDelete BatchOperation = "delete"
)

// Service implements single and batch policy/relation mutation.
type Service struct {
	rules   repository.RuleRepository
	reload  Reloader
	publish Publisher
}

// New creates a Service.
func New(rules repository.RuleRepository, reload Reloader, publish Publisher) *Service {
	return &Service{rules: rules, reload: reload, publish: publish}
}

// CreatePolicy translates dto to positional form, persists it, reloads the
// enforcer, and emits PolicyCreated. A failed write is never followed by a
// reload.
func (s *Service) CreatePolicy(ctx context.Context, dto policymapper.PolicyRuleDTO) (int64, error) {
	tuple := policymapper.ToPositional(dto)

	id, err := s.rules.CreatePolicy(ctx, tuple)
	if err != nil {
		return 0, err
	}

	s.reload.Reload(ctx)

	return id, s.publish.Publish(ctx, events.Event{
		Type:          events.PolicyCreated,
		AggregateType: events.AggregatePolicyRule,
		AggregateID:   fmt.Sprint(id),
		Payload:       map[string]any{"id": id, "ptype": dto.Ptype},
	})
}

// DeletePolicy removes the rule with id, reloads, and emits PolicyDeleted.
func (s *Service) DeletePolicy(ctx context.Context, id int64) error {
	if err := s.rules.DeletePolicy(ctx, id); err != nil {
		return err
	}

	s.reload.Reload(ctx)

	return s.publish.Publish(ctx, events.Event{
		Type:          events.PolicyDeleted,
		AggregateType: events.AggregatePolicyRule,
		AggregateID:   fmt.Sprint(id),
		Payload:       map[string]any{"id": id},
	})
}

// BatchPolicies applies op ("add" or "delete") to dtos, reloads exactly once
// after the whole batch completes without error, and emits
// PolicyBatchApplied.
func (s *Service) BatchPolicies(ctx context.Context, dtos []policymapper.PolicyRuleDTO, op BatchOperation) error {
	switch op {
	case BatchAdd:
		tuples := make([]policymapper.PositionalTuple, len(dtos))
		for i, dto := range dtos {
			tuples[i] = policymapper.ToPositional(dto)
		}
		if _, err := s.rules.CreatePolicies(ctx, tuples); err != nil {
			return err
		}
	case BatchDelete:
		ids := make([]int64, len(dtos))
		for i, dto := range dtos {
			ids[i] = dto.ID
		}
		if err := s.rules.DeletePolicies(ctx, ids); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown batch operation %q", op)
	}

	s.reload.Reload(ctx)

	return s.publish.Publish(ctx, events.Event{
		Type:          events.PolicyBatchApplied,
		AggregateType: events.AggregatePolicyRule,
		AggregateID:   string(op),
		Payload:       map[string]any{"operation": op, "count": len(dtos)},
	})
}

// CreateRelation translates dto to positional form, persists it, reloads,
// and emits RelationCreated.
func (s *Service) CreateRelation(ctx context.Context, dto policymapper.RoleRelationDTO) (int64, error) {
	tuple := policymapper.RelationToPositional(dto)

	id, err := s.rules.CreateRelation(ctx, tuple)
	if err != nil {
		return 0, err
	}

	s.reload.Reload(ctx)

	return id, s.publish.Publish(ctx, events.Event{
		Type:          events.RelationCreated,
		AggregateType: events.AggregatePolicyRule,
		AggregateID:   fmt.Sprint(id),
		Payload:       map[string]any{"id": id},
	})
}

// DeleteRelation removes the relation with id, reloads, and emits
// RelationDeleted.
func (s *Service) DeleteRelation(ctx context.Context, id int64) error {
	if err := s.rules.DeleteRelation(ctx, id); err != nil {
		return err
	}

	s.reload.Reload(ctx)

	return s.publish.Publish(ctx, events.Event{
		Type:          events.RelationDeleted,
		AggregateType: events.AggregatePolicyRule,
		AggregateID:   fmt.Sprint(id),
		Payload:       map[string]any{"id": id},
	})
}
