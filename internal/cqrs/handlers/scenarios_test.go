package handlers

import (
	"context"
	"testing"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/castellan/iamcore/internal/cqrs"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/castellan/iamcore/internal/enforcer"
	"github.com/castellan/iamcore/internal/events"
	"github.com/castellan/iamcore/internal/modelconfig"
	"github.com/castellan/iamcore/internal/policyadmin"
	"github.com/castellan/iamcore/internal/policymapper"
	"github.com/castellan/iamcore/internal/repository"
	"github.com/stretchr/testify/require"
)

// fakeRuleStore is an in-memory repository.RuleRepository also consulted
// directly by memAdapter.LoadPolicy, so a Reload immediately observes any
// committed write.
type fakeRuleStore struct {
	rows   map[int64]policymapper.PositionalTuple
	nextID int64
}

func newFakeRuleStore() *fakeRuleStore {
	return &fakeRuleStore{rows: make(map[int64]policymapper.PositionalTuple)}
}

func (f *fakeRuleStore) PagePolicies(ctx context.Context, current, size int, filter repository.PolicyFilter) (repository.Page[policymapper.PositionalTuple], error) {
	panic("not needed")
}
func (f *fakeRuleStore) PageRelations(ctx context.Context, current, size int, filter repository.RelationFilter) (repository.Page[policymapper.PositionalTuple], error) {
	panic("not needed")
}
func (f *fakeRuleStore) GetPolicyByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error) {
	return f.rows[id], nil
}
func (f *fakeRuleStore) GetRelationByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error) {
	return f.rows[id], nil
}
func (f *fakeRuleStore) CreatePolicy(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	f.nextID++
	tuple.ID = f.nextID
	f.rows[f.nextID] = tuple
	return f.nextID, nil
}
func (f *fakeRuleStore) DeletePolicy(ctx context.Context, id int64) error {
	delete(f.rows, id)
	return nil
}
func (f *fakeRuleStore) CreatePolicies(ctx context.Context, tuples []policymapper.PositionalTuple) ([]int64, error) {
	ids := make([]int64, len(tuples))
	for i, t := range tuples {
		f.nextID++
		t.ID = f.nextID
		f.rows[f.nextID] = t
		ids[i] = f.nextID
	}
	return ids, nil
}
func (f *fakeRuleStore) DeletePolicies(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(f.rows, id)
	}
	return nil
}
func (f *fakeRuleStore) CreateRelation(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	return f.CreatePolicy(ctx, tuple)
}
func (f *fakeRuleStore) DeleteRelation(ctx context.Context, id int64) error {
	return f.DeletePolicy(ctx, id)
}

// memAdapter is a minimal persist.Adapter reading directly from a
// fakeRuleStore, for exercising a real Casbin enforcer in tests without a
// database.
type memAdapter struct {
	store *fakeRuleStore
}

func (a *memAdapter) LoadPolicy(model casbinmodel.Model) error {
	for _, row := range a.store.rows {
		sec := "p"
		if row.Ptype == policymapper.PtypeRelation {
			sec = "g"
		}
		model.AddPolicy(sec, row.Ptype, ruleValues(row))
	}
	return nil
}
func (a *memAdapter) SavePolicy(model casbinmodel.Model) error                     { return nil }
func (a *memAdapter) AddPolicy(sec, ptype string, rule []string) error             { return nil }
func (a *memAdapter) RemovePolicy(sec, ptype string, rule []string) error          { return nil }
func (a *memAdapter) RemoveFilteredPolicy(sec, ptype string, fieldIndex int, fieldValues ...string) error {
	return nil
}

func ruleValues(t policymapper.PositionalTuple) []string {
	if t.Ptype == policymapper.PtypeRelation {
		return trimTrailingEmpty([]string{t.V0, t.V1, t.V2})
	}
	return trimTrailingEmpty([]string{t.V0, t.V1, t.V2, t.V3, t.V4, t.V5})
}

func trimTrailingEmpty(vals []string) []string {
	i := len(vals)
	for i > 0 && vals[i-1] == "" {
		i--
	}
	return vals[:i]
}

const domainModel = `
[request_definition]
r = sub, obj, act, dom

[policy_definition]
p = sub, obj, act, dom, eft

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.obj == p.obj && r.act == p.act && r.dom == p.dom
`

type fakeOutbox struct {
	events []events.Event
}

func (o *fakeOutbox) Publish(ctx context.Context, ev events.Event) error {
	o.events = append(o.events, ev)
	return nil
}

type fakeModelStore struct {
	rows   map[int64]*models.ModelConfig
	nextID int64
}

func newFakeModelStore() *fakeModelStore {
	return &fakeModelStore{rows: make(map[int64]*models.ModelConfig)}
}

func (f *fakeModelStore) PageModelVersions(ctx context.Context, current, size int, filter repository.ModelConfigFilter) (repository.Page[*models.ModelConfig], error) {
	panic("not needed")
}
func (f *fakeModelStore) GetModelConfigByID(ctx context.Context, id int64) (*models.ModelConfig, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, notFoundErr(id)
	}
	return row, nil
}
func (f *fakeModelStore) GetNextVersion(ctx context.Context) (int64, error) {
	var max int64
	for _, r := range f.rows {
		if r.Version > max {
			max = r.Version
		}
	}
	return max + 1, nil
}
func (f *fakeModelStore) GetActiveModelConfig(ctx context.Context) (*models.ModelConfig, error) {
	for _, r := range f.rows {
		if r.Status == models.ModelConfigStatusActive {
			return r, nil
		}
	}
	return nil, nil
}
func (f *fakeModelStore) CreateModelConfig(ctx context.Context, record *models.ModelConfig) error {
	f.nextID++
	record.ID = f.nextID
	f.rows[record.ID] = record
	return nil
}
func (f *fakeModelStore) UpdateModelConfig(ctx context.Context, id int64, patch repository.ModelConfigPatch) error {
	row, ok := f.rows[id]
	if !ok {
		return notFoundErr(id)
	}
	if patch.Content != nil {
		row.Content = *patch.Content
	}
	if patch.Remark != nil {
		row.Remark = *patch.Remark
	}
	if patch.ApprovedBy != nil {
		row.ApprovedBy = *patch.ApprovedBy
	}
	return nil
}
func (f *fakeModelStore) SetActiveVersion(ctx context.Context, id int64) error {
	target, ok := f.rows[id]
	if !ok {
		return notFoundErr(id)
	}
	for _, r := range f.rows {
		if r.Status == models.ModelConfigStatusActive && r.ID != id {
			r.Status = models.ModelConfigStatusArchived
		}
	}
	target.Status = models.ModelConfigStatusActive
	return nil
}

type notFoundErr int64

func (e notFoundErr) Error() string { return "model config not found" }

// harness wires a full in-memory stack: rule store + casbin enforcer +
// coordinator + model-config service + policy mutation service + bus.
type harness struct {
	t        *testing.T
	bus      *cqrs.Bus
	rules    *fakeRuleStore
	models   *fakeModelStore
	coord    *enforcer.Coordinator
	outbox   *fakeOutbox
	modelSvc *modelconfig.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	rules := newFakeRuleStore()
	modelStore := newFakeModelStore()
	modelSvc := modelconfig.New(modelStore, func() int64 { return 1000 })

	adapter := &memAdapter{store: rules}
	e, err := casbin.NewEnforcer(mustModelFromString(t), adapter)
	require.NoError(t, err)

	loadBaseModel := func() (casbinmodel.Model, error) { return mustModelFromString(t), nil }
	coord := enforcer.New(e, modelSvc, adapter, loadBaseModel)

	outbox := &fakeOutbox{}
	mutation := policyadmin.New(rules, coord, outbox)

	bus := cqrs.New()
	Register(bus,
		NewPolicyHandlers(mutation),
		NewPolicyQueryHandlers(rules),
		NewModelHandlers(modelSvc, coord, outbox),
		NewModelQueryHandlers(modelStore, modelSvc),
		NewUserHandlers(nil),
	)

	return &harness{t: t, bus: bus, rules: rules, models: modelStore, coord: coord, outbox: outbox, modelSvc: modelSvc}
}

func mustModelFromString(t *testing.T) casbinmodel.Model {
	t.Helper()
	m, err := casbinmodel.NewModelFromString(domainModel)
	require.NoError(t, err)
	return m
}

// S1 — Publish and enforce.
func TestScenario_S1_PublishAndEnforce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft, err := h.modelSvc.CreateDraft(ctx, domainModel, "init", "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), draft.Version)

	_, err = h.bus.Dispatch(ctx, cqrs.PolicyCreate{
		Policy: policymapper.PolicyRuleDTO{Ptype: "p", Subject: "admin", Object: "/api/users", Action: "GET", Domain: "acme", Effect: "allow"},
		UID:    "u1",
	})
	require.NoError(t, err)

	_, err = h.bus.Dispatch(ctx, cqrs.ModelPublish{ID: draft.ID, UID: "u1"})
	require.NoError(t, err)

	ok, err := h.coord.Enforce("admin", "/api/users", "GET", "acme")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.coord.Enforce("admin", "/api/users", "POST", "acme")
	require.NoError(t, err)
	require.False(t, ok)
}

// S2 — Rollback restores an archived version.
func TestScenario_S2_Rollback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1, err := h.modelSvc.CreateDraft(ctx, domainModel, "v1", "u1")
	require.NoError(t, err)
	_, err = h.bus.Dispatch(ctx, cqrs.ModelPublish{ID: v1.ID, UID: "u1"})
	require.NoError(t, err)

	v2, err := h.modelSvc.CreateDraft(ctx, domainModel, "v2", "u1")
	require.NoError(t, err)
	_, err = h.bus.Dispatch(ctx, cqrs.ModelPublish{ID: v2.ID, UID: "u1"})
	require.NoError(t, err)

	_, err = h.bus.Dispatch(ctx, cqrs.ModelRollback{ID: v1.ID, UID: "u2"})
	require.NoError(t, err)

	v1Row, err := h.models.GetModelConfigByID(ctx, v1.ID)
	require.NoError(t, err)
	require.Equal(t, models.ModelConfigStatusActive, v1Row.Status)
	require.Equal(t, "u2", v1Row.ApprovedBy)

	v2Row, err := h.models.GetModelConfigByID(ctx, v2.ID)
	require.NoError(t, err)
	require.Equal(t, models.ModelConfigStatusArchived, v2Row.Status)
}

// S3 — Batch add then delete.
func TestScenario_S3_BatchAddThenDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.bus.Dispatch(ctx, cqrs.PolicyBatch{
		Policies: []policymapper.PolicyRuleDTO{
			{Ptype: "p", Subject: "r1", Object: "/a", Action: "GET", Domain: "acme", Effect: "allow"},
			{Ptype: "p", Subject: "r1", Object: "/b", Action: "GET", Domain: "acme", Effect: "allow"},
		},
		Operation: "add",
		UID:       "u1",
	})
	require.NoError(t, err)
	require.Len(t, h.rules.rows, 2)

	var ids []int64
	for id := range h.rules.rows {
		ids = append(ids, id)
	}

	_, err = h.bus.Dispatch(ctx, cqrs.PolicyBatch{
		Policies: []policymapper.PolicyRuleDTO{{ID: ids[0], Ptype: "p"}, {ID: ids[1], Ptype: "p"}},
		Operation: "delete",
		UID:       "u1",
	})
	require.NoError(t, err)
	require.Empty(t, h.rules.rows)
}

// S5 — Relation driving role inheritance.
func TestScenario_S5_RelationDrivesInheritance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft, err := h.modelSvc.CreateDraft(ctx, domainModel, "init", "u1")
	require.NoError(t, err)
	_, err = h.bus.Dispatch(ctx, cqrs.ModelPublish{ID: draft.ID, UID: "u1"})
	require.NoError(t, err)

	_, err = h.bus.Dispatch(ctx, cqrs.PolicyCreate{
		Policy: policymapper.PolicyRuleDTO{Ptype: "p", Subject: "admin", Object: "/secret", Action: "GET", Domain: "acme", Effect: "allow"},
		UID:    "u1",
	})
	require.NoError(t, err)

	_, err = h.bus.Dispatch(ctx, cqrs.RelationCreate{
		Relation: policymapper.RoleRelationDTO{ChildSubject: "u42", ParentRole: "admin", Domain: "acme"},
		UID:      "u1",
	})
	require.NoError(t, err)

	ok, err := h.coord.Enforce("u42", "/secret", "GET", "acme")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.coord.Enforce("u42", "/secret", "GET", "other")
	require.NoError(t, err)
	require.False(t, ok)
}

// S6 — Diff output.
func TestScenario_S6_Diff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1, err := h.modelSvc.CreateDraft(ctx, domainModel, "", "u1")
	require.NoError(t, err)

	v2Content := "A\nX\nB\nC"
	v1.Content = "A\nB\nC"
	require.NoError(t, h.models.UpdateModelConfig(ctx, v1.ID, repository.ModelConfigPatch{Content: &v1.Content}))

	v2, err := h.modelSvc.CreateDraft(ctx, domainModel, "", "u1")
	require.NoError(t, err)
	require.NoError(t, h.models.UpdateModelConfig(ctx, v2.ID, repository.ModelConfigPatch{Content: &v2Content}))

	result, err := h.bus.Query(ctx, cqrs.ModelVersionDiff{SourceID: v1.ID, TargetID: v2.ID})
	require.NoError(t, err)

	dto := result.(cqrs.ModelVersionDiffDto)
	require.Equal(t, "  A\n+ X\n  B\n  C", dto.Diff)
}
