package rolecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, "")
}

func TestSetAndGetRoles(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.SetRoles(ctx, "user-1", []string{"admin", "viewer"}, time.Minute)
	require.NoError(t, err)

	roles, ok, err := c.GetRoles(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"admin", "viewer"}, roles)
}

func TestGetRoles_MissingEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	roles, ok, err := c.GetRoles(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, roles)
}

func TestSetRoles_EmptySetIsDistinctFromMissing(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.SetRoles(ctx, "user-2", []string{}, time.Minute)
	require.NoError(t, err)

	roles, ok, err := c.GetRoles(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, roles)
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetRoles(ctx, "user-3", []string{"admin"}, time.Minute))
	require.NoError(t, c.Clear(ctx, "user-3"))

	_, ok, err := c.GetRoles(ctx, "user-3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClear_MissingEntryIsNotError(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Clear(context.Background(), "ghost"))
}

func TestSetRoles_Overwrites(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetRoles(ctx, "user-4", []string{"admin"}, time.Minute))
	require.NoError(t, c.SetRoles(ctx, "user-4", []string{"viewer"}, time.Minute))

	roles, ok, err := c.GetRoles(ctx, "user-4")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"viewer"}, roles)
}
