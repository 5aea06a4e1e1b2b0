package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/auth/bunadapter"
	"github.com/castellan/iamcore/internal/policymapper"
	"github.com/uptrace/bun"
)

// BunRuleRepository implements RuleRepository against the same
// casbin_rules table the Casbin persist.Adapter reads/writes, following the
// transactional idioms of bunadapter.Adapter.
type BunRuleRepository struct {
	db *bun.DB
}

// NewBunRuleRepository creates a new Bun-based rule repository.
func NewBunRuleRepository(db *bun.DB) *BunRuleRepository {
	return &BunRuleRepository{db: db}
}

func toTuple(r *bunadapter.CasbinRule) policymapper.PositionalTuple {
	return policymapper.PositionalTuple{
		ID: r.ID, Ptype: r.Ptype,
		V0: r.V0, V1: r.V1, V2: r.V2, V3: r.V3, V4: r.V4, V5: r.V5,
	}
}

func fromTuple(t policymapper.PositionalTuple) *bunadapter.CasbinRule {
	return &bunadapter.CasbinRule{
		ID: t.ID, Ptype: t.Ptype,
		V0: t.V0, V1: t.V1, V2: t.V2, V3: t.V3, V4: t.V4, V5: t.V5,
	}
}

func applySubstring(q *bun.SelectQuery, column, value string) *bun.SelectQuery {
	if value == "" {
		return q
	}
	return q.Where(column+" LIKE ?", "%"+value+"%")
}

// PagePolicies returns rows of filter.Ptype (ptype="p" when it is empty)
// matching filter, ordered by id.
func (r *BunRuleRepository) PagePolicies(ctx context.Context, current, size int, filter PolicyFilter) (Page[policymapper.PositionalTuple], error) {
	ptype := filter.Ptype
	if ptype == "" {
		ptype = policymapper.PtypePolicy
	}

	var rows []*bunadapter.CasbinRule
	q := r.db.NewSelect().Model(&rows).Where("ptype = ?", ptype)
	q = applySubstring(q, "v0", filter.Subject)
	q = applySubstring(q, "v1", filter.Object)
	q = applySubstring(q, "v2", filter.Action)
	q = applySubstring(q, "v3", filter.Domain)

	return pageQuery(ctx, q, current, size, toTuple)
}

// PageRelations returns ptype="g" rows matching filter, ordered by id.
func (r *BunRuleRepository) PageRelations(ctx context.Context, current, size int, filter RelationFilter) (Page[policymapper.PositionalTuple], error) {
	var rows []*bunadapter.CasbinRule
	q := r.db.NewSelect().Model(&rows).Where("ptype = ?", policymapper.PtypeRelation)
	q = applySubstring(q, "v0", filter.ChildSubject)
	q = applySubstring(q, "v1", filter.ParentRole)
	q = applySubstring(q, "v2", filter.Domain)

	return pageQuery(ctx, q, current, size, toTuple)
}

func pageQuery(ctx context.Context, q *bun.SelectQuery, current, size int, conv func(*bunadapter.CasbinRule) policymapper.PositionalTuple) (Page[policymapper.PositionalTuple], error) {
	if current < 1 {
		current = 1
	}
	if size < 1 {
		size = 20
	}

	total, err := q.Clone().Count(ctx)
	if err != nil {
		return Page[policymapper.PositionalTuple]{}, fmt.Errorf("count rule rows: %w", err)
	}

	var rows []*bunadapter.CasbinRule
	err = q.Order("id ASC").Limit(size).Offset((current - 1) * size).Scan(ctx, &rows)
	if err != nil {
		return Page[policymapper.PositionalTuple]{}, fmt.Errorf("page rule rows: %w", err)
	}

	records := make([]policymapper.PositionalTuple, 0, len(rows))
	for _, row := range rows {
		records = append(records, conv(row))
	}

	return Page[policymapper.PositionalTuple]{Current: current, Size: size, Total: total, Records: records}, nil
}

func (r *BunRuleRepository) getByID(ctx context.Context, id int64, ptype string) (policymapper.PositionalTuple, error) {
	row := new(bunadapter.CasbinRule)
	err := r.db.NewSelect().Model(row).Where("id = ? AND ptype = ?", id, ptype).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return policymapper.PositionalTuple{}, apperr.NotFound("rule %d not found", id)
		}
		return policymapper.PositionalTuple{}, fmt.Errorf("get rule by id: %w", err)
	}
	return toTuple(row), nil
}

// GetPolicyByID returns the ptype="p" row with the given id.
func (r *BunRuleRepository) GetPolicyByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error) {
	return r.getByID(ctx, id, policymapper.PtypePolicy)
}

// GetRelationByID returns the ptype="g" row with the given id.
func (r *BunRuleRepository) GetRelationByID(ctx context.Context, id int64) (policymapper.PositionalTuple, error) {
	return r.getByID(ctx, id, policymapper.PtypeRelation)
}

// CreatePolicy inserts a new ptype="p" row. Duplicate content is permitted
// (no implicit dedup per §3).
func (r *BunRuleRepository) CreatePolicy(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	return r.insert(ctx, tuple)
}

// CreateRelation inserts a new ptype="g" row.
func (r *BunRuleRepository) CreateRelation(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	return r.insert(ctx, tuple)
}

func (r *BunRuleRepository) insert(ctx context.Context, tuple policymapper.PositionalTuple) (int64, error) {
	row := fromTuple(tuple)
	row.ID = 0
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return 0, fmt.Errorf("create rule: %w", err)
	}
	return row.ID, nil
}

// CreatePolicies inserts every tuple in one transaction.
func (r *BunRuleRepository) CreatePolicies(ctx context.Context, tuples []policymapper.PositionalTuple) ([]int64, error) {
	ids := make([]int64, 0, len(tuples))
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, t := range tuples {
			row := fromTuple(t)
			row.ID = 0
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return fmt.Errorf("create policies: %w", err)
			}
			ids = append(ids, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeletePolicy deletes the ptype="p" row with the given id. NotFound if
// absent.
func (r *BunRuleRepository) DeletePolicy(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, id, policymapper.PtypePolicy)
}

// DeleteRelation deletes the ptype="g" row with the given id. NotFound if
// absent.
func (r *BunRuleRepository) DeleteRelation(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, id, policymapper.PtypeRelation)
}

func (r *BunRuleRepository) deleteByID(ctx context.Context, id int64, ptype string) error {
	res, err := r.db.NewDelete().Model((*bunadapter.CasbinRule)(nil)).Where("id = ? AND ptype = ?", id, ptype).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("rule %d not found", id)
	}
	return nil
}

// DeletePolicies deletes all ptype="p" rows with the given ids in one
// transaction. NotFound if any id is absent.
func (r *BunRuleRepository) DeletePolicies(ctx context.Context, ids []int64) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, id := range ids {
			res, err := tx.NewDelete().Model((*bunadapter.CasbinRule)(nil)).
				Where("id = ? AND ptype = ?", id, policymapper.PtypePolicy).Exec(ctx)
			if err != nil {
				return fmt.Errorf("delete policies: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete policies rows affected: %w", err)
			}
			if affected == 0 {
				return apperr.NotFound("policy %d not found", id)
			}
		}
		return nil
	})
}
