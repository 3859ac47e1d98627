package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/marketplace/internal/cache"
	"github.com/smallbiznis/marketplace/internal/config"
	"golang.org/x/time/rate"
)

const (
	keyInvitationSend = "ratelimit:invitation:org:%s"
	localLimiterTTL   = time.Hour
)

// InvitationLimiter caps how many invitations one organization may send. It
// shares a Redis bucket across replicas when Redis is configured and keeps
// per-process limiters otherwise.
type InvitationLimiter struct {
	policy *config.PolicyHolder
	bucket *TokenBucket
	local  *cache.TTLCache[string, *rate.Limiter]
}

func NewInvitationLimiter(policy *config.PolicyHolder, client *redis.Client) *InvitationLimiter {
	return &InvitationLimiter{
		policy: policy,
		bucket: NewTokenBucket(client),
		local:  cache.NewTTLCache[string, *rate.Limiter](),
	}
}

// Allow consumes one send for organizationID.
func (l *InvitationLimiter) Allow(ctx context.Context, organizationID string) (*RateLimitResult, error) {
	if l == nil || l.policy == nil {
		return &RateLimitResult{Allowed: true}, nil
	}
	p := l.policy.Get()
	if p.InvitationsPerMinute <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}

	perSecond := p.InvitationsPerMinute / 60
	key := fmt.Sprintf(keyInvitationSend, strings.TrimSpace(organizationID))
	if l.bucket != nil {
		return l.bucket.Allow(ctx, key, perSecond, p.InvitationBurst)
	}
	return l.allowLocal(key, perSecond, p.InvitationBurst), nil
}

func (l *InvitationLimiter) allowLocal(key string, perSecond float64, burst int) *RateLimitResult {
	limiter, ok := l.local.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	} else {
		limiter.SetLimit(rate.Limit(perSecond))
		limiter.SetBurst(burst)
	}
	l.local.Set(key, limiter, localLimiterTTL)

	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if !reservation.OK() || delay > 0 {
		reservation.CancelAt(now)
		retryAfter := delay
		if !reservation.OK() {
			retryAfter = time.Duration(math.Ceil(1/perSecond)) * time.Second
		}
		return &RateLimitResult{
			Allowed:    false,
			Limit:      burst,
			ResetTime:  now.Add(retryAfter),
			RetryAfter: retryAfter,
		}
	}
	return &RateLimitResult{
		Allowed:   true,
		Limit:     burst,
		Remaining: int(limiter.TokensAt(now)),
		ResetTime: now,
	}
}
