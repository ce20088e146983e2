package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisWindowTTLSeconds = 120

// KEYS[1] window key; ARGV cost, limit, ttl. Returns {allowed, count}.
var redisAllowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local cost = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if current >= limit or current + cost > limit then
  return {0, current}
end
if cost == 0 then
  return {1, current}
end
current = redis.call("INCRBY", KEYS[1], cost)
if current == cost then
  redis.call("EXPIRE", KEYS[1], ARGV[3])
end
return {1, current}
`)

var redisRecordScript = redis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return current
`)

// RedisLimiter implements a fixed-window rate limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks and consumes budget in the current minute.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit, cost int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	window := windowStart(now)
	reset := windowReset(window)

	res, err := redisAllowScript.Run(ctx, l.client, []string{l.buildKey(key, window)}, cost, limit, redisWindowTTLSeconds).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) != 2 {
		return Result{}, errors.New("rate limit redis: unexpected response shape")
	}
	allowed, _ := res[0].(int64)
	count, ok := res[1].(int64)
	if !ok {
		return Result{}, errors.New("rate limit redis: unexpected response type")
	}

	if allowed == 0 {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Reset: reset}, nil
}

// Record adds cost to the current minute.
func (l *RedisLimiter) Record(ctx context.Context, key string, cost int, now time.Time) error {
	if key == "" || cost <= 0 || l == nil || l.client == nil {
		return nil
	}
	return redisRecordScript.Run(ctx, l.client, []string{l.buildKey(key, windowStart(now))}, cost, redisWindowTTLSeconds).Err()
}

func (l *RedisLimiter) buildKey(key string, window int64) string {
	windowStr := strconv.FormatInt(window, 10)
	if l.prefix == "" {
		return key + ":" + windowStr
	}
	return l.prefix + ":" + key + ":" + windowStr
}
