// Package principal implements the Principal / Token Service (C8): password
// login issuing an opaque access/refresh pair, refresh-token exchange with
// single-use semantics, and sign-out — plus the (uid, username, domain)
// Principal shape produced from a validated access token.
package principal

import (
	"context"
	"time"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/castellan/iamcore/internal/events"
	"github.com/castellan/iamcore/internal/repository"
)

// RequestContext carries the request metadata stamped onto issued token
// rows; none of it participates in authorization decisions.
type RequestContext struct {
	IP        string
	Address   string
	UserAgent string
	RequestID string
	Type      string
	Port      *int
}

// RoleCache is the subset of rolecache.Cache this service depends on.
type RoleCache interface {
	SetRoles(ctx context.Context, uid string, roles []string, ttl time.Duration) error
	Clear(ctx context.Context, uid string) error
}

// RoleLookup resolves the role codes a uid holds, used to populate the role
// cache on login. In production this walks the "g" relations for the user's
// domain; it is injected so the token service stays independent of the Rule
// Store's query shape.
type RoleLookup func(ctx context.Context, uid, domain string) ([]string, error)

// Publisher is the subset of events.Publisher this service depends on.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Service implements execPasswordLogin / refreshToken / signOut.
type Service struct {
	users     repository.UserRepository
	tokens    repository.TokenRepository
	roleCache RoleCache
	lookup    RoleLookup
	publish   Publisher
	signer    *TokenSigner
}

// New creates a Service.
func New(users repository.UserRepository, tokens repository.TokenRepository, roleCache RoleCache, lookup RoleLookup, publish Publisher, signer *TokenSigner) *Service {
	return &Service{users: users, tokens: tokens, roleCache: roleCache, lookup: lookup, publish: publish, signer: signer}
}

// TokenPairResult is the (accessToken, refreshToken) pair returned to
// callers.
type TokenPairResult struct {
	AccessToken  string
	RefreshToken string
}

// ExecPasswordLogin looks up the user by username/email/phoneNumber, checks
// password and enabled status, issues a token pair, persists it as unused,
// populates the role cache, and emits UserLoggedIn + TokenGenerated.
func (s *Service) ExecPasswordLogin(ctx context.Context, identifier, password string, domain string, rc RequestContext) (TokenPairResult, error) {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return TokenPairResult{}, err
	}

	if !ComparePassword(user.PasswordHash, password) {
		return TokenPairResult{}, apperr.BadRequest("invalid credentials")
	}
	if !user.Enabled {
		return TokenPairResult{}, apperr.Forbidden("user %s is disabled", user.ID)
	}

	if domain == "" {
		domain = user.Domain
	}
	p := Principal{UID: user.ID, Username: user.Username, Domain: domain}

	pair, err := s.issueAndPersist(ctx, p, rc)
	if err != nil {
		return TokenPairResult{}, err
	}

	if err := s.populateRoleCache(ctx, p); err != nil {
		return TokenPairResult{}, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return TokenPairResult{}, err
	}

	if err := s.publish.Publish(ctx, events.Event{
		Type:          events.UserLoggedIn,
		AggregateType: events.AggregateUser,
		AggregateID:   user.ID,
		Payload:       map[string]any{"username": user.Username},
	}); err != nil {
		return TokenPairResult{}, err
	}
	if err := s.publish.Publish(ctx, events.Event{
		Type:          events.TokenGenerated,
		AggregateType: events.AggregateUser,
		AggregateID:   user.ID,
		Payload:       map[string]any{"type": rc.Type},
	}); err != nil {
		return TokenPairResult{}, err
	}

	return pair, nil
}

// RefreshToken exchanges a still-unused refresh token for a new pair.
// Concurrent refresh attempts on the same token result in at most one
// success via a compare-and-set on the row's status.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string, rc RequestContext) (TokenPairResult, error) {
	row, err := s.tokens.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPairResult{}, err
	}
	if row == nil {
		return TokenPairResult{}, apperr.NotFound("refresh token not found")
	}

	if _, err := s.signer.ParseRefreshToken(refreshToken); err != nil {
		return TokenPairResult{}, apperr.BadRequest("invalid refresh token: %v", err)
	}

	if row.Status != models.TokenStatusUnused {
		return TokenPairResult{}, apperr.Conflict("refresh token already used")
	}

	used, err := s.tokens.MarkUsed(ctx, row.ID)
	if err != nil {
		return TokenPairResult{}, err
	}
	if !used {
		// Lost the compare-and-set race to a concurrent refresh.
		return TokenPairResult{}, apperr.Conflict("refresh token already used")
	}

	p := Principal{UID: row.UserID, Username: row.Username, Domain: row.Domain}
	pair, err := s.issueAndPersist(ctx, p, rc)
	if err != nil {
		return TokenPairResult{}, err
	}

	if err := s.publish.Publish(ctx, events.Event{
		Type:          events.RefreshTokenUsed,
		AggregateType: events.AggregateUser,
		AggregateID:   row.UserID,
		Payload:       map[string]any{"previousTokenId": row.ID},
	}); err != nil {
		return TokenPairResult{}, err
	}
	if err := s.publish.Publish(ctx, events.Event{
		Type:          events.TokenGenerated,
		AggregateType: events.AggregateUser,
		AggregateID:   row.UserID,
		Payload:       map[string]any{"type": rc.Type},
	}); err != nil {
		return TokenPairResult{}, err
	}

	return pair, nil
}

// SignOut marks the row for refreshToken used, if present, and clears the
// role cache for its uid. Idempotent: a missing row is not an error.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	row, err := s.tokens.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}

	if _, err := s.tokens.MarkUsed(ctx, row.ID); err != nil {
		return err
	}

	return s.roleCache.Clear(ctx, row.UserID)
}

func (s *Service) issueAndPersist(ctx context.Context, p Principal, rc RequestContext) (TokenPairResult, error) {
	access, err := s.signer.IssueAccessToken(p)
	if err != nil {
		return TokenPairResult{}, apperr.Internal("issue access token: %v", err)
	}
	refresh, err := s.signer.IssueRefreshToken(p)
	if err != nil {
		return TokenPairResult{}, apperr.Internal("issue refresh token: %v", err)
	}

	row := &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Status:       models.TokenStatusUnused,
		UserID:       p.UID,
		Username:     p.Username,
		Domain:       p.Domain,
		IP:           rc.IP,
		Address:      rc.Address,
		UserAgent:    rc.UserAgent,
		RequestID:    rc.RequestID,
		Type:         rc.Type,
		Port:         rc.Port,
		CreatedBy:    p.UID,
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return TokenPairResult{}, err
	}

	return TokenPairResult{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) populateRoleCache(ctx context.Context, p Principal) error {
	if s.lookup == nil {
		return s.roleCache.SetRoles(ctx, p.UID, nil, s.signer.AccessTTL())
	}
	roles, err := s.lookup(ctx, p.UID, p.Domain)
	if err != nil {
		return err
	}
	return s.roleCache.SetRoles(ctx, p.UID, roles, s.signer.AccessTTL())
}
