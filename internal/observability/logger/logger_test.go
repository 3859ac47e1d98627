package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/marketplace/internal/observability/context"
	"github.com/smallbiznis/marketplace/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActorID(ctx, "provider-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "cid-1")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "provider-1", fields["actor_id"])
		assert.Equal(t, "cid-1", fields["correlation_id"])
		_, hasTrace := fields["trace_id"]
		assert.False(t, hasTrace)
	}
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/v1/ping", func(c *gin.Context) {
		assert.Equal(t, "abc", obscontext.RequestIDFromContext(c.Request.Context()))
		assert.NotEmpty(t, correlation.ExtractCorrelationID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, 1, logs.FilterMessage("http_request").Len())
}

func TestShapeOf(t *testing.T) {
	assert.Equal(t, statementShape{"UPDATE", "providers"}, shapeOf("UPDATE providers SET version = 2 WHERE id = ?"))
	assert.Equal(t, statementShape{"INSERT", "outbox_events"}, shapeOf(`INSERT INTO "outbox_events" ("id") VALUES (?)`))
	assert.Equal(t, statementShape{"SELECT", "x"}, shapeOf("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, statementShape{"DELETE", "provider_invitations"}, shapeOf("delete from provider_invitations"))
	assert.Equal(t, statementShape{operation: "UNKNOWN"}, shapeOf(""))
}

func TestGormLoggerFlagsStaleWrites(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig()).LogMode(gormlogger.Info)
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "UPDATE provider_invitations SET status = ? WHERE id = ? AND version = ?", 0
	}, nil)
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM providers WHERE id = ?", 1
	}, nil)

	entries := logs.FilterMessage("gorm.query").All()
	if assert.Len(t, entries, 2) {
		first := entries[0].ContextMap()
		assert.Equal(t, true, first["stale_write"])
		assert.Equal(t, "provider_invitations", first["table"])
		_, flagged := entries[1].ContextMap()["stale_write"]
		assert.False(t, flagged)
	}
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM providers WHERE id = ?", 0
	}, gormlogger.ErrRecordNotFound)

	assert.Equal(t, 0, logs.Len())
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/v1/providers", http.StatusCreated))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/v1/invitations/:id/accept", http.StatusConflict))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/v1/providers", http.StatusInternalServerError))
}
