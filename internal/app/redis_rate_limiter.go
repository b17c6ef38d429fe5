/**
 * @description
 * This file provides the Redis-backed implementation of the SubmitRateLimiter
 * interface. Counting happens server-side in a Lua script so that concurrent API
 * instances share one fixed window per subject: the first increment of a key arms
 * its expiry, and every caller gets back the current count together with the
 * remaining window.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and script execution.
 */

package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var submitRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisSubmitRateLimiter implements distributed submission rate limiting using Redis.
type RedisSubmitRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSubmitRateLimiter(client redis.UniversalClient, prefix string) *RedisSubmitRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "charges:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisSubmitRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// ConsumeRateLimit counts one attempt for the subject and reports the resulting
// window state. A misconfigured limiter (nil client, non-positive limit or
// window, blank scope or subject) counts nothing and never throttles.
func (r *RedisSubmitRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (RateBudget, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return RateBudget{}, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return RateBudget{}, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, normalizedScope, normalizedSubject)
	reply, err := submitRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return RateBudget{}, err
	}
	return decodeLimiterReply(reply, windowMs)
}

// decodeLimiterReply turns the script's {count, ttl_ms} pair into a RateBudget.
// The retry hint rounds the remaining window up to whole seconds so a client
// that honors it never lands inside the same window again.
func decodeLimiterReply(reply interface{}, windowMs int64) (RateBudget, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return RateBudget{}, fmt.Errorf("rate limit script returned %T, want [count, ttl]", reply)
	}

	count, ok := values[0].(int64)
	if !ok {
		return RateBudget{}, fmt.Errorf("rate limit script count is %T, want int64", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return RateBudget{Count: int(count)}, fmt.Errorf("rate limit script ttl is %T, want int64", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return RateBudget{Count: int(count), RetryAfterSeconds: retryAfter}, nil
}
