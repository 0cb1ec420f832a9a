package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisComponentChecker reads component flags from a Redis set
// (key: components:enabled).
type RedisComponentChecker struct {
	client *redis.Client
	key    string
}

func NewRedisComponentChecker(client *redis.Client) *RedisComponentChecker {
	return &RedisComponentChecker{client: client, key: "components:enabled"}
}

func (r *RedisComponentChecker) Enable(ctx context.Context, componentID string) error {
	return r.client.SAdd(ctx, r.key, componentID).Err()
}

func (r *RedisComponentChecker) Disable(ctx context.Context, componentID string) error {
	return r.client.SRem(ctx, r.key, componentID).Err()
}

func (r *RedisComponentChecker) IsEnabled(ctx context.Context, componentID string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, componentID).Result()
}

// RedisPermissionSet caches user permission grants in Redis sets
// (key: perm:{userID}). It backs HasPermission only; identity lookups stay
// on the primary store, so it composes with one rather than replacing it.
type RedisPermissionSet struct {
	client *redis.Client
	keyFmt string
}

func NewRedisPermissionSet(client *redis.Client) *RedisPermissionSet {
	return &RedisPermissionSet{client: client, keyFmt: "perm:%s"}
}

func (r *RedisPermissionSet) key(userID string) string {
	return fmt.Sprintf(r.keyFmt, userID)
}

func (r *RedisPermissionSet) Grant(ctx context.Context, userID, permission string) error {
	return r.client.SAdd(ctx, r.key(userID), permission).Err()
}

func (r *RedisPermissionSet) Revoke(ctx context.Context, userID, permission string) error {
	return r.client.SRem(ctx, r.key(userID), permission).Err()
}

func (r *RedisPermissionSet) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	return r.client.SIsMember(ctx, r.key(userID), permission).Result()
}
