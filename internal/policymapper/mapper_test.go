package policymapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPositional_Policy(t *testing.T) {
	dto := PolicyRuleDTO{
		Ptype:   PtypePolicy,
		Subject: "admin",
		Object:  "/api/users",
		Action:  "GET",
		Domain:  "acme",
		Effect:  "allow",
		V5:      "ext",
	}

	got := ToPositional(dto)

	require.Equal(t, PositionalTuple{
		Ptype: "p",
		V0:    "admin",
		V1:    "/api/users",
		V2:    "GET",
		V3:    "acme",
		V4:    "allow",
		V5:    "ext",
	}, got)
}

func TestToPositional_Relation(t *testing.T) {
	dto := PolicyRuleDTO{
		Ptype:   PtypeRelation,
		Subject: "u42",
		Object:  "admin",
		Domain:  "acme",
	}

	got := ToPositional(dto)

	require.Equal(t, PositionalTuple{
		Ptype: "g",
		V0:    "u42",
		V1:    "admin",
		V2:    "acme",
	}, got)
}

func TestRoundTrip_Policy(t *testing.T) {
	dto := PolicyRuleDTO{
		ID:      7,
		Ptype:   PtypePolicy,
		Subject: "r1",
		Object:  "/a",
		Action:  "GET",
		Domain:  "acme",
		Effect:  "allow",
		V5:      "x",
	}

	positional := ToPositional(dto)
	roundTripped := ToDTO(ToPositional(ToDTO(positional)))

	assert.Equal(t, ToPositional(dto), ToPositional(roundTripped))
}

func TestRoundTrip_Relation(t *testing.T) {
	dto := PolicyRuleDTO{
		ID:      3,
		Ptype:   PtypeRelation,
		Subject: "u1",
		Object:  "editor",
		Domain:  "acme",
	}

	positional := ToPositional(dto)
	roundTripped := ToDTO(ToPositional(ToDTO(positional)))

	assert.Equal(t, ToPositional(dto), ToPositional(roundTripped))
}

func TestRelationDTOMapping(t *testing.T) {
	dto := RoleRelationDTO{ChildSubject: "u42", ParentRole: "admin", Domain: "acme"}

	got := RelationToPositional(dto)
	require.Equal(t, PositionalTuple{Ptype: "g", V0: "u42", V1: "admin", V2: "acme"}, got)

	back := RelationFromPositional(got)
	require.Equal(t, dto, back)
}
