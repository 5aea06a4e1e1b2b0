package principal

import (
	"context"
	"testing"
	"time"

	"github.com/castellan/iamcore/internal/apperr"
	"github.com/castellan/iamcore/internal/db/models"
	"github.com/castellan/iamcore/internal/events"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	byIdentifier map[string]*models.User
	lastLoginIDs []string
}

func (f *fakeUsers) Create(ctx context.Context, user *models.User) error { panic("not needed") }
func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	panic("not needed")
}
func (f *fakeUsers) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	u, ok := f.byIdentifier[identifier]
	if !ok {
		return nil, apperr.NotFound("user %s not found", identifier)
	}
	return u, nil
}
func (f *fakeUsers) UpdateLastLogin(ctx context.Context, id string) error {
	f.lastLoginIDs = append(f.lastLoginIDs, id)
	return nil
}
func (f *fakeUsers) SetPasswordHash(ctx context.Context, id string, hash string) error {
	panic("not needed")
}

type fakeTokens struct {
	rows map[string]*models.TokenPair
}

func newFakeTokens() *fakeTokens { return &fakeTokens{rows: make(map[string]*models.TokenPair)} }

func (f *fakeTokens) Create(ctx context.Context, pair *models.TokenPair) error {
	if pair.ID == "" {
		pair.ID = pair.AccessToken // stand-in unique id for tests
	}
	f.rows[pair.ID] = pair
	return nil
}
func (f *fakeTokens) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	for _, r := range f.rows {
		if r.RefreshToken == refreshToken {
			return r, nil
		}
	}
	return nil, nil
}
func (f *fakeTokens) MarkUsed(ctx context.Context, id string) (bool, error) {
	row, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if row.Status != models.TokenStatusUnused {
		return false, nil
	}
	row.Status = models.TokenStatusUsed
	return true, nil
}

type fakeRoleCache struct {
	roles   map[string][]string
	cleared []string
}

func newFakeRoleCache() *fakeRoleCache { return &fakeRoleCache{roles: make(map[string][]string)} }

func (f *fakeRoleCache) SetRoles(ctx context.Context, uid string, roles []string, ttl time.Duration) error {
	f.roles[uid] = roles
	return nil
}
func (f *fakeRoleCache) Clear(ctx context.Context, uid string) error {
	f.cleared = append(f.cleared, uid)
	delete(f.roles, uid)
	return nil
}

type fakePublisher struct {
	events []events.Event
}

func (p *fakePublisher) Publish(ctx context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func testSigner() *TokenSigner {
	return NewTokenSigner("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
}

func newTestUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	return &models.User{ID: "user-1", Username: "alice", Domain: "tenant-a", PasswordHash: hash, Enabled: true}
}

func TestExecPasswordLogin_Success(t *testing.T) {
	user := newTestUser(t)
	users := &fakeUsers{byIdentifier: map[string]*models.User{"alice": user}}
	tokens := newFakeTokens()
	roleCache := newFakeRoleCache()
	publisher := &fakePublisher{}
	lookup := func(ctx context.Context, uid, domain string) ([]string, error) { return []string{"admin"}, nil }
	svc := New(users, tokens, roleCache, lookup, publisher, testSigner())

	pair, err := svc.ExecPasswordLogin(context.Background(), "alice", "correct horse", "", RequestContext{Type: "web"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, []string{"admin"}, roleCache.roles["user-1"])
	require.Len(t, publisher.events, 2)
	require.Equal(t, events.UserLoggedIn, publisher.events[0].Type)
	require.Equal(t, events.TokenGenerated, publisher.events[1].Type)
}

func TestExecPasswordLogin_WrongPassword(t *testing.T) {
	user := newTestUser(t)
	users := &fakeUsers{byIdentifier: map[string]*models.User{"alice": user}}
	svc := New(users, newFakeTokens(), newFakeRoleCache(), nil, &fakePublisher{}, testSigner())

	_, err := svc.ExecPasswordLogin(context.Background(), "alice", "wrong", "", RequestContext{})
	require.Error(t, err)
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestExecPasswordLogin_DisabledUser(t *testing.T) {
	user := newTestUser(t)
	user.Enabled = false
	users := &fakeUsers{byIdentifier: map[string]*models.User{"alice": user}}
	svc := New(users, newFakeTokens(), newFakeRoleCache(), nil, &fakePublisher{}, testSigner())

	_, err := svc.ExecPasswordLogin(context.Background(), "alice", "correct horse", "", RequestContext{})
	require.Error(t, err)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestExecPasswordLogin_UnknownIdentifier(t *testing.T) {
	users := &fakeUsers{byIdentifier: map[string]*models.User{}}
	svc := New(users, newFakeTokens(), newFakeRoleCache(), nil, &fakePublisher{}, testSigner())

	_, err := svc.ExecPasswordLogin(context.Background(), "ghost", "x", "", RequestContext{})
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRefreshToken_SingleUse(t *testing.T) {
	user := newTestUser(t)
	users := &fakeUsers{byIdentifier: map[string]*models.User{"alice": user}}
	tokens := newFakeTokens()
	svc := New(users, tokens, newFakeRoleCache(), nil, &fakePublisher{}, testSigner())

	pair, err := svc.ExecPasswordLogin(context.Background(), "alice", "correct horse", "", RequestContext{})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), pair.RefreshToken, RequestContext{})
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.RefreshToken(context.Background(), pair.RefreshToken, RequestContext{})
	require.Error(t, err)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRefreshToken_UnknownToken(t *testing.T) {
	svc := New(&fakeUsers{}, newFakeTokens(), newFakeRoleCache(), nil, &fakePublisher{}, testSigner())

	_, err := svc.RefreshToken(context.Background(), "does-not-exist", RequestContext{})
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSignOut_ClearsRoleCache(t *testing.T) {
	user := newTestUser(t)
	users := &fakeUsers{byIdentifier: map[string]*models.User{"alice": user}}
	tokens := newFakeTokens()
	roleCache := newFakeRoleCache()
	svc := New(users, tokens, roleCache, nil, &fakePublisher{}, testSigner())

	pair, err := svc.ExecPasswordLogin(context.Background(), "alice", "correct horse", "", RequestContext{})
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(context.Background(), pair.RefreshToken))
	require.Contains(t, roleCache.cleared, "user-1")
}

func TestSignOut_MissingTokenIsNotError(t *testing.T) {
	svc := New(&fakeUsers{}, newFakeTokens(), newFakeRoleCache(), nil, &fakePublisher{}, testSigner())
	require.NoError(t, svc.SignOut(context.Background(), "ghost"))
}
