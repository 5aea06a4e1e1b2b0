package handlers

import (
	"context"

	"github.com/castellan/iamcore/internal/cqrs"
	"github.com/castellan/iamcore/internal/repository"
)

// UserHandlers binds UserVerifyEmail. The actual verification-email
// dispatch is an external collaborator per scope; this handler only
// confirms the target user exists, surfacing NotFound otherwise.
type UserHandlers struct {
	users repository.UserRepository
}

// NewUserHandlers creates a UserHandlers.
func NewUserHandlers(users repository.UserRepository) *UserHandlers {
	return &UserHandlers{users: users}
}

func (h *UserHandlers) UserVerifyEmail(ctx context.Context, msg any) (any, error) {
	cmd := msg.(cqrs.UserVerifyEmail)
	if _, err := h.users.GetByID(ctx, cmd.UserID); err != nil {
		return nil, err
	}
	return true, nil
}
