// Package policymapper implements the bidirectional mapping between the
// typed administrative DTOs and the positional ptype/v0..v5 rule layout
// (C3). It is pure domain logic with no external dependency: the positional
// layout is a serialization concern of the store adapter only, per the
// explicit-sum-type guidance for replacing duck-typed mapping.
package policymapper

// Ptype values recognized by the core.
const (
	PtypePolicy  = "p"
	PtypeRelation = "g"
)

// PositionalTuple is the (ptype, v0..v5) form stored by the Rule Store.
type PositionalTuple struct {
	ID    int64
	Ptype string
	V0    string
	V1    string
	V2    string
	V3    string
	V4    string
	V5    string
}

// PolicyRuleDTO is the typed administrative shape for ptype = "p" and
// ptype = "g" rows alike (the "g" fields reuse Subject/Object/Domain per
// §4.3's folding rule, with V4/V5 carrying whatever the "p" Effect/Extension
// fields would hold).
type PolicyRuleDTO struct {
	ID     int64
	Ptype  string
	Subject string
	Object  string
	Action  string
	Domain  string
	Effect  string
	V4      string
	V5      string
}

// RoleRelationDTO is the typed administrative shape for ptype = "g" rows.
type RoleRelationDTO struct {
	ID           int64
	ChildSubject string
	ParentRole   string
	Domain       string
}

// ToPositional maps a PolicyRuleDTO to its positional tuple. For ptype "p"
// the mapping is straight: v0=subject, v1=object, v2=action, v3=domain,
// v4=effect, v5=extension. For ptype "g" the mapping folds: subject->v0,
// object(parent role)->v1, domain->v2, and DTO V4/V5 carry into positional
// v3/v4 so that information on the typed form survives the round trip.
func ToPositional(dto PolicyRuleDTO) PositionalTuple {
	t := PositionalTuple{ID: dto.ID, Ptype: dto.Ptype}
	switch dto.Ptype {
	case PtypeRelation:
		t.V0 = dto.Subject
		t.V1 = dto.Object
		t.V2 = dto.Domain
		t.V3 = dto.V4
		t.V4 = dto.V5
	default: // "p"
		t.V0 = dto.Subject
		t.V1 = dto.Object
		t.V2 = dto.Action
		t.V3 = dto.Domain
		t.V4 = dto.Effect
		t.V5 = dto.V5
	}
	return t
}

// ToDTO is the inverse of ToPositional, mirroring its folding rule.
func ToDTO(t PositionalTuple) PolicyRuleDTO {
	dto := PolicyRuleDTO{ID: t.ID, Ptype: t.Ptype}
	switch t.Ptype {
	case PtypeRelation:
		dto.Subject = t.V0
		dto.Object = t.V1
		dto.Domain = t.V2
		dto.V4 = t.V3
		dto.V5 = t.V4
	default: // "p"
		dto.Subject = t.V0
		dto.Object = t.V1
		dto.Action = t.V2
		dto.Domain = t.V3
		dto.Effect = t.V4
		dto.V5 = t.V5
	}
	return dto
}

// RelationToPositional maps a RoleRelationDTO directly to its positional
// tuple (ptype = "g" always): childSubject->v0, parentRole->v1, domain->v2.
func RelationToPositional(dto RoleRelationDTO) PositionalTuple {
	return PositionalTuple{
		ID:    dto.ID,
		Ptype: PtypeRelation,
		V0:    dto.ChildSubject,
		V1:    dto.ParentRole,
		V2:    dto.Domain,
	}
}

// RelationFromPositional is the inverse of RelationToPositional.
func RelationFromPositional(t PositionalTuple) RoleRelationDTO {
	return RoleRelationDTO{
		ID:           t.ID,
		ChildSubject: t.V0,
		ParentRole:   t.V1,
		Domain:       t.V2,
	}
}
