package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	rediscommon "github.com/atmopics/share/common/redis"
	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed           bool  // Whether the request is allowed
	CurrentCount      int64 // Current count in the window, when known
	Limit             int64 // The limit that was checked
	RetryAfterSeconds int64 // Seconds until a request would pass (0 if allowed)
}

// Limiter admits or rejects one request for key
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// RedisLimiter is a fixed-window limiter shared by every replica
type RedisLimiter struct {
	redis  *rediscommon.Client
	script *redis.Script
	limit  int64
	window time.Duration
	logger Logger
}

// NewRedisLimiter creates a limiter with the embedded Lua script
func NewRedisLimiter(client *rediscommon.Client, limit int64, window time.Duration, logger Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		script: redis.NewScript(rateLimitScript),
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow runs the Lua script atomically for key
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	key = "rate_limit:" + key
	windowSec := int64(r.window / time.Second)
	if windowSec < 1 {
		windowSec = 1
	}

	raw, err := r.redis.RunScript(ctx, r.script, []string{key}, r.limit, windowSec)
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	result, err := parseScriptResult(raw)
	if err != nil {
		return nil, err
	}

	if !result.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	}

	return result, nil
}

// parseScriptResult reads {allowed, current_count, limit, retry_after}
func parseScriptResult(raw interface{}) (*Result, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 4 {
		return nil, fmt.Errorf("unexpected script result format: %v", raw)
	}

	vals := make([]int64, len(arr))
	for i, v := range arr {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script result element %d: %T", i, v)
		}
		vals[i] = n
	}

	return &Result{
		Allowed:           vals[0] == 1,
		CurrentCount:      vals[1],
		Limit:             vals[2],
		RetryAfterSeconds: vals[3],
	}, nil
}
