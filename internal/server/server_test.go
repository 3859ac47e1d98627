package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditrepository "github.com/smallbiznis/marketplace/internal/audit/repository"
	auditservice "github.com/smallbiznis/marketplace/internal/audit/service"
	"github.com/smallbiznis/marketplace/internal/authorization"
	"github.com/smallbiznis/marketplace/internal/cache"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/events/outbox"
	eventrepository "github.com/smallbiznis/marketplace/internal/events/repository"
	hierarchyquery "github.com/smallbiznis/marketplace/internal/hierarchy/query"
	hierarchyservice "github.com/smallbiznis/marketplace/internal/hierarchy/service"
	invitationrepository "github.com/smallbiznis/marketplace/internal/invitation/repository"
	joinrequestrepository "github.com/smallbiznis/marketplace/internal/joinrequest/repository"
	"github.com/smallbiznis/marketplace/internal/migration"
	"github.com/smallbiznis/marketplace/internal/observability"
	providerrepository "github.com/smallbiznis/marketplace/internal/provider/repository"
	providerservice "github.com/smallbiznis/marketplace/internal/provider/service"
	"github.com/smallbiznis/marketplace/internal/ratelimit"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	engine *gin.Engine
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	PageInfo json.RawMessage `json:"page_info"`
	Error    *errorPayload   `json:"error"`
}

func newTestServer(t *testing.T, policy config.HierarchyPolicy) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	holder := config.StaticPolicy(policy)

	providers := providerrepository.Provide()
	invitations := invitationrepository.Provide()
	requests := joinrequestrepository.Provide()
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	engine := NewEngine(EngineParams{ObsCfg: observability.Config{Environment: "test"}})
	NewServer(ServerParams{
		Gin: engine,
		Cfg: config.Config{IdempotencyTTL: time.Hour},
		Log: log,
		ProviderSvc: providerservice.New(providerservice.Params{
			DB:    conn,
			Log:   log,
			Clock: fake,
			Repo:  providers,
		}),
		HierarchySvc: hierarchyservice.New(hierarchyservice.Params{
			DB:              conn,
			Log:             log,
			Clock:           fake,
			Policy:          holder,
			ProviderRepo:    providers,
			InvitationRepo:  invitations,
			JoinRequestRepo: requests,
			Outbox:          outbox.NewOutbox(outbox.Params{GenID: node, Repo: eventrepository.Provide()}),
			AuditSvc:        auditSvc,
		}),
		QuerySvc: hierarchyquery.New(hierarchyquery.Params{
			DB:              conn,
			Log:             log,
			Clock:           fake,
			ProviderRepo:    providers,
			InvitationRepo:  invitations,
			JoinRequestRepo: requests,
		}),
		AuthzSvc: authorization.NewService(authorization.Params{
			DB:           conn,
			Log:          log,
			Enforcer:     enforcer,
			ProviderRepo: providers,
		}),
		AuditSvc:    auditSvc,
		Limiter:     ratelimit.NewInvitationLimiter(holder, nil),
		Idempotency: cache.NewMemoryIdempotencyStore(),
	})
	return &testServer{engine: engine}
}

func defaultPolicy() config.HierarchyPolicy {
	return config.HierarchyPolicy{InvitationExpirationDays: 7}
}

func (s *testServer) do(t *testing.T, method, path, actor string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ProviderIDHeader, actor)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s *testServer) register(t *testing.T, name, phone, kind string) string {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/v1/providers", "", gin.H{
		"display_name":   name,
		"phone_number":   phone,
		"hierarchy_type": kind,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out.ID
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, defaultPolicy())
	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActorHeaderRequired(t *testing.T) {
	s := newTestServer(t, defaultPolicy())

	rec, env := s.do(t, http.MethodGet, "/v1/invitations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthorized", env.Error.Type)

	rec, _ = s.do(t, http.MethodGet, "/v1/invitations", "not-a-uuid", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, defaultPolicy())
	org := s.register(t, "Sunrise Clinic", "+15550100001", "ORGANIZATION")
	nurse := s.register(t, "Ana Nurse", "+15550100002", "INDIVIDUAL")

	rec, env := s.do(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", org, gin.H{
		"phone_number": "+1 (555) 010-0002",
		"invitee_name": "Ana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[struct {
		InvitationID string `json:"invitation_id"`
		Status       string `json:"status"`
	}](t, env.Data)
	assert.Equal(t, "PENDING", sent.Status)

	rec, env = s.do(t, http.MethodGet, "/v1/invitations", nurse, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]struct {
		ID    string `json:"id"`
		Valid bool   `json:"valid"`
	}](t, env.Data)
	require.Len(t, mine, 1)
	assert.Equal(t, sent.InvitationID, mine[0].ID)
	assert.True(t, mine[0].Valid)

	rec, _ = s.do(t, http.MethodGet, "/v1/invitations/"+sent.InvitationID, nurse, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/invitations/"+sent.InvitationID+"/accept", nurse, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/v1/providers/"+nurse, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[struct {
		ParentProviderID *string `json:"parent_provider_id"`
	}](t, env.Data)
	require.NotNil(t, profile.ParentProviderID)
	assert.Equal(t, org, *profile.ParentProviderID)

	rec, env = s.do(t, http.MethodGet, "/v1/organizations/"+org+"/staff", nurse, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, env.Data), 1)

	rec, env = s.do(t, http.MethodGet, "/v1/providers/"+nurse+"/audit-logs", org, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decode[[]struct {
		Action string `json:"action"`
	}](t, env.Data)
	require.Len(t, logs, 1)
	assert.Equal(t, "LINKED", logs[0].Action)

	rec, env = s.do(t, http.MethodPost, "/v1/invitations/"+sent.InvitationID+"/accept", nurse, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invitation_not_pending", env.Error.Code)
}

func TestStaffCannotManageOrganization(t *testing.T) {
	s := newTestServer(t, defaultPolicy())
	org := s.register(t, "Sunrise Clinic", "+15550110001", "ORGANIZATION")
	nurse := s.register(t, "Ana Nurse", "+15550110002", "INDIVIDUAL")

	rec, env := s.do(t, http.MethodPost, "/v1/organizations/"+org+"/join-requests", nurse, gin.H{"message": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	request := decode[struct {
		RequestID string `json:"request_id"`
	}](t, env.Data)

	rec, _ = s.do(t, http.MethodPost, "/v1/organizations/"+org+"/join-requests/"+request.RequestID+"/approve", nurse, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/organizations/"+org+"/join-requests/"+request.RequestID+"/approve", org, gin.H{"note": "welcome"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", nurse, gin.H{"phone_number": "+15550110003"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(t, http.MethodDelete, "/v1/organizations/"+org+"/staff/"+nurse, org, gin.H{"reason": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "missing_reason", env.Error.Code)

	rec, _ = s.do(t, http.MethodDelete, "/v1/organizations/"+org+"/staff/"+nurse, org, gin.H{"reason": "contract ended"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestJoinRequestListingAndCancel(t *testing.T) {
	s := newTestServer(t, defaultPolicy())
	org := s.register(t, "Sunrise Clinic", "+15550120001", "ORGANIZATION")
	nurse := s.register(t, "Ana Nurse", "+15550120002", "INDIVIDUAL")

	rec, env := s.do(t, http.MethodPost, "/v1/organizations/"+org+"/join-requests", nurse, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	request := decode[struct {
		RequestID string `json:"request_id"`
	}](t, env.Data)

	rec, env = s.do(t, http.MethodGet, "/v1/organizations/"+org+"/join-requests?status=pending", org, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, env.Data), 1)

	rec, _ = s.do(t, http.MethodGet, "/v1/organizations/"+org+"/join-requests?status=bogus", org, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/providers/"+nurse+"/join-requests", org, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/join-requests/"+request.RequestID+"/cancel", nurse, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/v1/providers/"+nurse+"/join-requests?status=WITHDRAWN", nurse, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, env.Data), 1)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, defaultPolicy())
	org := s.register(t, "Sunrise Clinic", "+15550130001", "ORGANIZATION")

	t.Run("unknown provider is not found", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/v1/providers/7f6c0c61-8c5e-4e8c-9d7f-0d7d7a0b1c2d", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "provider_not_found", env.Error.Code)
	})

	t.Run("malformed path id", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/v1/providers/nope", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		require.Len(t, env.Error.Errors, 1)
		assert.Equal(t, "id", env.Error.Errors[0].Field)
	})

	t.Run("invalid phone is a validation error", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", org, gin.H{"phone_number": "12"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "validation_error", env.Error.Type)
		assert.Equal(t, "invalid_phone_number", env.Error.Code)
	})

	t.Run("unknown actor is unauthorized", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodGet, "/v1/invitations", "7f6c0c61-8c5e-4e8c-9d7f-0d7d7a0b1c2d", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestIdempotencyKey(t *testing.T) {
	s := newTestServer(t, defaultPolicy())
	body := gin.H{"display_name": "Ana", "phone_number": "+15550140001", "hierarchy_type": "INDIVIDUAL"}

	rec, _ := s.do(t, http.MethodPost, "/v1/providers", "", gin.H{"display_name": ""}, IdempotencyKeyHeader, "key-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/providers", "", body, IdempotencyKeyHeader, "key-1")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := s.do(t, http.MethodPost, "/v1/providers", "", body, IdempotencyKeyHeader, "key-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "idempotency_conflict", env.Error.Code)
}

func TestInvitationRateLimit(t *testing.T) {
	s := newTestServer(t, config.HierarchyPolicy{
		InvitationExpirationDays: 7,
		InvitationsPerMinute:     1,
		InvitationBurst:          2,
	})
	org := s.register(t, "Sunrise Clinic", "+15550150001", "ORGANIZATION")

	for _, number := range []string{"+15550150002", "+15550150003"} {
		rec, _ := s.do(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", org, gin.H{"phone_number": number})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, env := s.do(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", org, gin.H{"phone_number": "+15550150004"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "rate_limited", env.Error.Type)
}
