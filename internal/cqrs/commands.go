package cqrs

import "github.com/castellan/iamcore/internal/policymapper"

// Commands mirror §6's external interface: nouns + verb, carrying the
// uid of the requesting principal for downstream audit/event payloads (not
// used for authorization here — that is the surrounding guard's job).

type PolicyCreate struct {
	Policy policymapper.PolicyRuleDTO
	UID    string
}

type PolicyDelete struct {
	ID  int64
	UID string
}

type PolicyBatch struct {
	Policies  []policymapper.PolicyRuleDTO
	Operation string // "add" | "delete"
	UID       string
}

type RelationCreate struct {
	Relation policymapper.RoleRelationDTO
	UID      string
}

type RelationDelete struct {
	ID  int64
	UID string
}

type ModelDraftCreate struct {
	Content string
	Remark  string
	UID     string
}

type ModelDraftUpdate struct {
	ID      int64
	Content string
	Remark  string
	UID     string
}

type ModelPublish struct {
	ID  int64
	UID string
}

type ModelRollback struct {
	ID  int64
	UID string
}

// UserVerifyEmail's actual email-dispatch/verification mechanics are an
// external collaborator per scope; this core only exposes the contract and
// confirms the target user exists.
type UserVerifyEmail struct {
	UserID string
	UID    string
}
