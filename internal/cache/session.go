package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tellus/tellus/internal/auth"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "sessions:user:"
)

// ErrSessionRevoked is returned for signed sessions no longer registered.
var ErrSessionRevoked = errors.New("session revoked")

func sessionKey(id string) string { return sessionKeyPrefix + id }
func userSessionsKey(userID string) string { return userSessionKeyPrefix + userID }

// RegisterSession records a freshly issued session until it expires.
func (c *Cache) RegisterSession(ctx context.Context, s *auth.Session) error {
	ttl := s.TTL(c.now())
	if ttl <= 0 {
		return auth.ErrSessionExpired
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), s.UserID, ttl)
	pipe.SAdd(ctx, userSessionsKey(s.UserID), s.ID)
	// Sessions share one TTL, so the newest outlives the rest.
	pipe.Expire(ctx, userSessionsKey(s.UserID), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// CheckSession returns ErrSessionRevoked if s was logged out, revoked or
// belongs to another user.
func (c *Cache) CheckSession(ctx context.Context, s *auth.Session) error {
	userID, err := c.client.Get(ctx, sessionKey(s.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrSessionRevoked
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if userID != s.UserID {
		return ErrSessionRevoked
	}
	return nil
}

// RevokeSession logs out a single session.
func (c *Cache) RevokeSession(ctx context.Context, s *auth.Session) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, sessionKey(s.ID))
	pipe.SRem(ctx, userSessionsKey(s.UserID), s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeUserSessions logs out every session of a user and returns how
// many were active.
func (c *Cache) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	ids, err := c.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	// n counts the index key too when it existed.
	if len(ids) > 0 {
		n--
	}
	return int(n), nil
}
