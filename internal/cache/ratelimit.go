package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit key prefixes. Client IPs are hashed before use.
const (
	rateLimitSubmitPrefix = "ratelimit:submit:"
	rateLimitGatePrefix   = "ratelimit:gate:"
	rateLimitAdminPrefix  = "ratelimit:admin:"

	// rateLimitTTL outlives a full bucket refill at the slowest configured rate.
	rateLimitTTL = 10 * time.Minute
)

// Scope selects which bucket family a check draws from.
type Scope string

const (
	// ScopeSubmit limits anonymous complaint and feedback submissions per IP.
	ScopeSubmit Scope = "submit"
	// ScopeGate limits secret attempts per box and IP.
	ScopeGate Scope = "gate"
	// ScopeAdmin limits authenticated admin traffic per user.
	ScopeAdmin Scope = "admin"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript is a Lua script implementing the token bucket algorithm.
// It's atomic and handles token refill and consumption in a single operation.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- max tokens (bucket capacity)
	local now = tonumber(ARGV[3])       -- current time in seconds
	local ttl = tonumber(ARGV[4])       -- TTL in seconds

	-- Get current state
	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	-- Refill tokens based on elapsed time
	local elapsed = now - last_update
	tokens = math.min(burst, tokens + (elapsed * rate))

	-- Check if request is allowed
	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		-- Calculate when 1 token will be available
		retry_after = math.ceil((1 - tokens) / rate)
	end

	-- Update state
	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckSubmitRateLimit checks the per-IP bucket for public submissions.
func (c *Cache) CheckSubmitRateLimit(ctx context.Context, ip string, perMinute, burst int) (*RateLimitResult, error) {
	return c.checkPerMinute(ctx, rateLimitSubmitPrefix+hashIP(ip), perMinute, burst)
}

// CheckGateRateLimit checks the bucket for secret attempts against one box
// from one IP. Guessing one box does not throttle access to another.
func (c *Cache) CheckGateRateLimit(ctx context.Context, boxID, ip string, perMinute, burst int) (*RateLimitResult, error) {
	return c.checkPerMinute(ctx, rateLimitGatePrefix+boxID+":"+hashIP(ip), perMinute, burst)
}

// CheckAdminRateLimit checks the per-user bucket for admin endpoints.
func (c *Cache) CheckAdminRateLimit(ctx context.Context, userID string, perMinute, burst int) (*RateLimitResult, error) {
	return c.checkPerMinute(ctx, rateLimitAdminPrefix+userID, perMinute, burst)
}

// Check dispatches to the bucket family named by scope. key is an IP for
// ScopeSubmit, "boxID|ip" for ScopeGate and a user id for ScopeAdmin.
func (c *Cache) Check(ctx context.Context, scope Scope, key string, perMinute, burst int) (*RateLimitResult, error) {
	switch scope {
	case ScopeSubmit:
		return c.CheckSubmitRateLimit(ctx, key, perMinute, burst)
	case ScopeGate:
		boxID, ip, _ := strings.Cut(key, "|")
		return c.CheckGateRateLimit(ctx, boxID, ip, perMinute, burst)
	case ScopeAdmin:
		return c.CheckAdminRateLimit(ctx, key, perMinute, burst)
	default:
		return nil, fmt.Errorf("unknown rate limit scope %q", scope)
	}
}

func (c *Cache) checkPerMinute(ctx context.Context, key string, perMinute, burst int) (*RateLimitResult, error) {
	// Zero disables the limit.
	if perMinute <= 0 {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(burst),
			ResetAt:   c.now().Add(time.Minute),
		}, nil
	}
	return c.checkRateLimit(ctx, key, float64(perMinute)/60.0, burst, int(rateLimitTTL.Seconds()))
}

// checkRateLimit is the common rate limit implementation.
func (c *Cache) checkRateLimit(ctx context.Context, key string, rate float64, burst, ttl int) (*RateLimitResult, error) {
	now := c.now().Unix()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, now, ttl,
	).Int64Slice()

	if err != nil {
		// Fail open on Redis errors - allow the request
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(burst),
			ResetAt:   c.now().Add(time.Minute),
		}, nil
	}

	allowed := result[0] == 1
	retryAfterSec := result[1]
	remaining := result[2]

	return &RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    c.now().Add(time.Duration(float64(time.Second) / rate)),
		RetryAfter: time.Duration(retryAfterSec) * time.Second,
	}, nil
}

// hashIP creates a truncated SHA256 hash of an IP address.
// This provides privacy while maintaining uniqueness.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
