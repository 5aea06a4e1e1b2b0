// Package rolecache implements the Role Cache (C7): a Redis-backed set of
// role codes keyed by principal uid, consulted by enforcement to expand a
// uid into the subjects checked against Casbin policies.
package rolecache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix is combined with a uid to form the cache key, e.g.
// "auth:token:" + uid. Configurable via Cache.prefix so deployments can
// namespace keys per environment.
const defaultKeyPrefix = "auth:token:"

// Cache stores the unordered set of role codes for a principal's uid.
// Entries are written on successful authentication and cleared on sign-out;
// TTL equals the access-token lifetime.
type Cache struct {
	client *redis.Client
	prefix string
}

// New creates a Cache against a Redis/Valkey address. prefix overrides the
// default "auth:token:" key prefix when non-empty.
func New(addr string, prefix string) (*Cache, error) {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to role cache redis: %w", err)
	}

	return &Cache{client: client, prefix: prefix}, nil
}

// NewWithClient wraps an already-constructed redis.Client, used by tests
// against miniredis.
func NewWithClient(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(uid string) string {
	return c.prefix + uid
}

// SetRoles replaces the role set for uid and sets its TTL. An empty roles
// slice is a valid, meaningful value ("zero roles") distinct from no entry
// at all, so it is still written rather than skipped or deleted.
func (c *Cache) SetRoles(ctx context.Context, uid string, roles []string, ttl time.Duration) error {
	key := c.key(uid)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	// SADD requires at least one member; a sentinel member distinguishes a
	// cached empty set from an absent key without relying on NULL.
	if len(roles) == 0 {
		pipe.SAdd(ctx, key, emptySetSentinel)
	} else {
		members := make([]interface{}, len(roles))
		for i, r := range roles {
			members[i] = r
		}
		pipe.SAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set role cache for %s: %w", uid, err)
	}
	return nil
}

// emptySetSentinel is never a valid role code (roles are non-empty
// identifiers by construction) so it can be filtered out on read without
// colliding with a real role.
const emptySetSentinel = "\x00empty"

// GetRoles returns the cached role codes for uid and whether an entry
// existed at all. A missing entry (ok=false) means the caller should treat
// the principal as having zero roles, per spec; it is not an error.
func (c *Cache) GetRoles(ctx context.Context, uid string) (roles []string, ok bool, err error) {
	key := c.key(uid)

	members, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("get role cache for %s: %w", uid, err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	roles = make([]string, 0, len(members))
	for _, m := range members {
		if m == emptySetSentinel {
			continue
		}
		roles = append(roles, m)
	}
	return roles, true, nil
}

// Clear removes the cached role set for uid. Idempotent: clearing an
// already-absent entry is not an error.
func (c *Cache) Clear(ctx context.Context, uid string) error {
	if err := c.client.Del(ctx, c.key(uid)).Err(); err != nil {
		return fmt.Errorf("clear role cache for %s: %w", uid, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
