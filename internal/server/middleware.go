package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/cache"
	obscontext "github.com/smallbiznis/marketplace/internal/observability/context"
	"github.com/smallbiznis/marketplace/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	ProviderIDHeader     = "X-Provider-Id"
	IdempotencyKeyHeader = "Idempotency-Key"

	contextActorKey = "actor_id"

	idempotencyReleaseTimeout = 2 * time.Second
)

// RequireActor resolves the calling provider from the X-Provider-Id header.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(ProviderIDHeader))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actorID, err := uuid.Parse(raw)
		if err != nil || actorID == uuid.Nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, actorID)
		ctx := obscontext.WithActorID(c.Request.Context(), actorID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorFrom(c *gin.Context) uuid.UUID {
	if value, ok := c.Get(contextActorKey); ok {
		if id, ok := value.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// Idempotency rejects a repeated Idempotency-Key for the same actor and route
// while the key is remembered. Keys of failed requests are released so the
// caller may retry.
func Idempotency(store cache.IdempotencyStore, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || store == nil || ttl <= 0 {
			c.Next()
			return
		}

		scoped := strings.Join([]string{c.Request.Method, c.FullPath(), actorFrom(c).String(), c.Request.URL.Path, key}, "|")
		reserved, err := store.Reserve(c.Request.Context(), scoped, ttl)
		if err != nil {
			log.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			AbortWithError(c, ErrIdempotencyConflict)
			return
		}

		c.Next()

		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), idempotencyReleaseTimeout)
			defer cancel()
			if err := store.Release(ctx, scoped); err != nil {
				log.Warn("idempotency key release failed", zap.Error(err))
			}
		}
	}
}

// APIMetrics records request counts and latency per matched route.
func APIMetrics(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		if last := c.Errors.Last(); last != nil && !c.Writer.Written() {
			status, _ = mapError(last.Err)
		}
		metrics.ObserveAPIRequest(c.Request.Method, route, status, time.Since(start))
	}
}
