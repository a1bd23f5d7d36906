package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	roleCachePrefix = "access:role:"
	lookupTimeout   = 5 * time.Second
)

// CachedRoleLookup caches roles in Redis in front of another RoleLookup.
// Misses for the same user are coalesced; missing records are not cached.
type CachedRoleLookup struct {
	next   RoleLookup
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedRoleLookup wraps next with a Redis cache. A nil client disables caching.
func NewCachedRoleLookup(next RoleLookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRoleLookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRoleLookup{next: next, client: client, ttl: ttl, logger: logger}
}

// RoleForUser implements RoleLookup.
func (c *CachedRoleLookup) RoleForUser(ctx context.Context, userID string) (Role, error) {
	key := roleCachePrefix + userID
	if c.client != nil {
		label, err := c.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			if role, perr := ParseRole(label); perr == nil {
				return role, nil
			}
		case errors.Is(err, redis.Nil):
		default:
			c.logger.Warn("role cache read", slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	value, err, _ := c.group.Do(userID, func() (interface{}, error) {
		// Waiters share this lookup, so it must outlive the first caller.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		role, err := c.next.RoleForUser(lctx, userID)
		if err != nil {
			return RoleUnknown, err
		}
		if c.client != nil && role.Valid() {
			if err := c.client.Set(lctx, key, role.String(), c.ttl).Err(); err != nil {
				c.logger.Warn("role cache write", slog.String("user_id", userID), slog.Any("error", err))
			}
		}
		return role, nil
	})
	if err != nil {
		return RoleUnknown, err
	}
	return value.(Role), nil
}

// Forget drops the cached role of userID.
func (c *CachedRoleLookup) Forget(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, roleCachePrefix+userID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
