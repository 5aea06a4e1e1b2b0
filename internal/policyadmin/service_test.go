package policyadmin

import (
	"context"
	"testing"

	"github.com/castellan/iamcore/internal/events"
	"github.com/castellan/iamcore/internal/policymapper"
	"github.com/castellan/iamcore/internal/repository"
	"github.com/stretchr/testify/require"
)

type fakeRules struct {
	policies      map[int64]policymapper.PositionalTuple
	relations     map[int64]policymapper.PositionalTuple
	nextID        int64
	failCreate    bool
	createdBatch  []policymapper.PositionalTuple
	deletedBatch  []int64
}

func newFakeRules() *fakeRules {
	return &fakeRules{
		policies:  make(map[int64]policymapper.PositionalTuple),
		relations: make(map[int64]policymapper.PositionalTuple),
	}
}

func (f *fakeRules) PagePolicies(ctx context.Context, current, size int, filter repository.PolicyFilter) (repository.Page[policymapper.PositionalTuple], error) {
	panic("not needed")
}
func (f *fakeRules) PageRelations(ctx context.Context, current, size int, filter repository.RelationFilter) (repository.Page[policymapper.PositionalTuple], error) {
	panic("not needed")
}
func (f *fakeRules) GetPolicyByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error) {
	return f.policies[id], nil
}
func (f *fakeRules) GetRelationByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error) {
	return f.relations[id], nil
}

func (f *fakeRules) CreatePolicy(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	if f.failCreate {
		return 0, errFake
	}
	f.nextID++
	f.policies[f.nextID] = tuple
	return f.nextID, nil
}
func (f *fakeRules) DeletePolicy(ctx context.Context, id int64) error {
	delete(f.policies, id)
	return nil
}
func (f *fakeRules) CreatePolicies(ctx context.Context, tuples []policymapper.PositionalTuple) ([]int64, error) {
	ids := make([]int64, len(tuples))
	for i, t := range tuples {
		f.nextID++
		f.policies[f.nextID] = t
		ids[i] = f.nextID
	}
	f.createdBatch = tuples
	return ids, nil
}
func (f *fakeRules) DeletePolicies(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(f.policies, id)
	}
	f.deletedBatch = ids
	return nil
}
func (f *fakeRules) CreateRelation(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	f.nextID++
	f.relations[f.nextID] = tuple
	return f.nextID, nil
}
func (f *fakeRules) DeleteRelation(ctx context.Context, id int64) error {
	delete(f.relations, id)
	return nil
}

var errFake = fakeErr("create failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

type fakeReloader struct {
	calls int
}

func (r *fakeReloader) Reload(ctx context.Context) bool {
	r.calls++
	return true
}

type fakePublisher struct {
	events []events.Event
}

func (p *fakePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func TestCreatePolicy_ReloadsAndPublishes(t *testing.T) {
	rules := newFakeRules()
	reloader := &fakeReloader{}
	publisher := &fakePublisher{}
	svc := New(rules, reloader, publisher)

	id, err := svc.CreatePolicy(context.Background(), policymapper.PolicyRuleDTO{
		Ptype: "p", Subject: "alice", Object: "doc1", Action: "read", Domain: "tenant-a", Effect: "allow",
	})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, 1, reloader.calls)
	require.Len(t, publisher.events, 1)
	require.Equal(t, events.PolicyCreated, publisher.events[0].Type)
}

func TestCreatePolicy_FailedWriteSkipsReload(t *testing.T) {
	rules := newFakeRules()
	rules.failCreate = true
	reloader := &fakeReloader{}
	publisher := &fakePublisher{}
	svc := New(rules, reloader, publisher)

	_, err := svc.CreatePolicy(context.Background(), policymapper.PolicyRuleDTO{Ptype: "p"})
	require.Error(t, err)
	require.Zero(t, reloader.calls)
	require.Empty(t, publisher.events)
}

func TestBatchPolicies_AddReloadsOnce(t *testing.T) {
	rules := newFakeRules()
	reloader := &fakeReloader{}
	publisher := &fakePublisher{}
	svc := New(rules, reloader, publisher)

	err := svc.BatchPolicies(context.Background(), []policymapper.PolicyRuleDTO{
		{Ptype: "p", Subject: "alice", Object: "doc1", Action: "read", Domain: "tenant-a", Effect: "allow"},
		{Ptype: "p", Subject: "bob", Object: "doc2", Action: "write", Domain: "tenant-a", Effect: "allow"},
	}, BatchAdd)
	require.NoError(t, err)
	require.Equal(t, 1, reloader.calls)
	require.Len(t, rules.createdBatch, 2)
	require.Len(t, publisher.events, 1)
	require.Equal(t, events.PolicyBatchApplied, publisher.events[0].Type)
}

func TestBatchPolicies_DeleteCollectsIDs(t *testing.T) {
	rules := newFakeRules()
	reloader := &fakeReloader{}
	publisher := &fakePublisher{}
	svc := New(rules, reloader, publisher)

	err := svc.BatchPolicies(context.Background(), []policymapper.PolicyRuleDTO{
		{ID: 10}, {ID: 11},
	}, BatchDelete)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 11}, rules.deletedBatch)
	require.Equal(t, 1, reloader.calls)
}

func TestCreateRelation_ReloadsAndPublishes(t *testing.T) {
	rules := newFakeRules()
	reloader := &fakeReloader{}
	publisher := &fakePublisher{}
	svc := New(rules, reloader, publisher)

	id, err := svc.CreateRelation(context.Background(), policymapper.RoleRelationDTO{
		ChildSubject: "alice", ParentRole: "admin", Domain: "tenant-a",
	})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, 1, reloader.calls)
	require.Equal(t, events.RelationCreated, publisher.events[0].Type)
}

func TestDeletePolicy_ReloadsAndPublishes(t *testing.T) {
	rules := newFakeRules()
	reloader := &fakeReloader{}
	publisher := &fakePublisher{}
	svc := New(rules, reloader, publisher)

	err := svc.DeletePolicy(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 1, reloader.calls)
	require.Equal(t, events.PolicyDeleted, publisher.events[0].Type)
}
