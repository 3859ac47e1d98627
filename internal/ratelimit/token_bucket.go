package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket is a hash {milli, at}: milli-tokens left and the Redis clock in
// milliseconds when they were counted. The script answers with integers only:
// {allowed, milli-tokens left, retry after ms, now ms}.
const takeScript = `
local per_ms = tonumber(ARGV[1]) / 1000
local capacity = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "at")
local milli = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now
if now > at then
  milli = math.min(capacity, milli + math.floor((now - at) * per_ms * 1000))
end

local allowed = 0
local wait = 0
if milli >= 1000 then
  allowed = 1
  milli = milli - 1000
else
  wait = math.ceil((1000 - milli) / (per_ms * 1000))
end

redis.call("HSET", KEYS[1], "milli", milli, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, milli, wait, now}
`

var errBucketArgs = errors.New("token bucket needs a key and positive rate and burst")

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket is a bucket held in Redis so every replica draws from the same
// allowance.
type TokenBucket struct {
	client *redis.Client
	take   *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, take: redis.NewScript(takeScript)}
}

// Allow takes one token from key. perSecond is the refill rate.
func (t *TokenBucket) Allow(ctx context.Context, key string, perSecond float64, burst int) (*RateLimitResult, error) {
	if t == nil {
		return nil, errors.New("token bucket has no redis client")
	}
	if key == "" || perSecond <= 0 || burst <= 0 {
		return nil, errBucketArgs
	}

	out, err := t.take.Run(ctx, t.client, []string{key},
		perSecond, burst, bucketTTL(perSecond, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, errors.New("token bucket script returned a malformed reply")
	}

	retryAfter := time.Duration(out[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    out[0] == 1,
		Limit:      burst,
		Remaining:  int(out[1] / 1000),
		ResetTime:  time.UnixMilli(out[3]).Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

// bucketTTL keeps an idle bucket for twice the time it takes to refill, and
// at least a second.
func bucketTTL(perSecond float64, burst int) time.Duration {
	if perSecond <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(burst)/perSecond))
	return time.Duration(seconds) * time.Second
}
