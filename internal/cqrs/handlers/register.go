package handlers

import (
	"github.com/castellan/iamcore/internal/cqrs"
)

// Register wires every command/query handler onto bus. Called once at
// startup; double-registration is a panic inside Bus.RegisterCommand/Query,
// not a condition this function guards against.
func Register(bus *cqrs.Bus, policy *PolicyHandlers, policyQuery *PolicyQueryHandlers, model *ModelHandlers, modelQuery *ModelQueryHandlers, user *UserHandlers) {
	bus.RegisterCommand(cqrs.PolicyCreate{}, policy.PolicyCreate)
	bus.RegisterCommand(cqrs.PolicyDelete{}, policy.PolicyDelete)
	bus.RegisterCommand(cqrs.PolicyBatch{}, policy.PolicyBatch)
	bus.RegisterCommand(cqrs.RelationCreate{}, policy.RelationCreate)
	bus.RegisterCommand(cqrs.RelationDelete{}, policy.RelationDelete)

	bus.RegisterCommand(cqrs.ModelDraftCreate{}, model.ModelDraftCreate)
	bus.RegisterCommand(cqrs.ModelDraftUpdate{}, model.ModelDraftUpdate)
	bus.RegisterCommand(cqrs.ModelPublish{}, model.ModelPublish)
	bus.RegisterCommand(cqrs.ModelRollback{}, model.ModelRollback)

	bus.RegisterCommand(cqrs.UserVerifyEmail{}, user.UserVerifyEmail)

	bus.RegisterQuery(cqrs.PagePolicies{}, policyQuery.PagePolicies)
	bus.RegisterQuery(cqrs.PageRelations{}, policyQuery.PageRelations)
	bus.RegisterQuery(cqrs.PageModelVersions{}, modelQuery.PageModelVersions)
	bus.RegisterQuery(cqrs.ModelVersionDetail{}, modelQuery.ModelVersionDetail)
	bus.RegisterQuery(cqrs.ModelVersionDiff{}, modelQuery.ModelVersionDiff)
}
