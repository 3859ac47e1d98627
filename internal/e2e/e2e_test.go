package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/config"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/internal/migration"
	"github.com/smallbiznis/marketplace/internal/observability"
	"github.com/smallbiznis/marketplace/internal/scheduler"
	"github.com/smallbiznis/marketplace/internal/server"
	"github.com/smallbiznis/marketplace/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	redis     *redis.Client
	mini      *miniredis.Miniredis
	clock     *clock.FakeClock
	scheduler *scheduler.Scheduler
	baseURL   string
	httpSrv   *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	mini, err := miniredis.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start redis:", err)
		os.Exit(1)
	}
	setDefaultEnv(mini.Addr())

	env, err = startEnv(mini)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		mini.Close()
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_InvitationAcceptedAndRelayed(t *testing.T) {
	resetDatabase(t, env.db)
	ctx := context.Background()

	sub := env.redis.Subscribe(ctx, eventdomain.TopicInvitationAccepted)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	org := registerProvider(t, "Harbor Dental", "+15550200001", "ORGANIZATION")
	nurse := registerProvider(t, "Rita Hygienist", "+15550200002", "INDIVIDUAL")

	resp, body := doJSON(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", map[string]any{
		"phone_number": "+15550200002",
	}, map[string]string{server.ProviderIDHeader: org})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send invitation: status %d body %s", resp.StatusCode, body)
	}
	var sent struct {
		Data struct {
			InvitationID string `json:"invitation_id"`
		} `json:"data"`
	}
	decodeJSON(t, body, &sent)

	resp, body = doJSON(t, http.MethodPost, "/v1/invitations/"+sent.Data.InvitationID+"/accept", nil,
		map[string]string{server.ProviderIDHeader: nurse})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept invitation: status %d body %s", resp.StatusCode, body)
	}

	if n := countRows(t, env.db, "outbox_events", "published_at IS NULL"); n != 2 {
		t.Fatalf("expected 2 unpublished events, got %d", n)
	}

	if err := env.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}

	if n := countRows(t, env.db, "outbox_events", "published_at IS NULL"); n != 0 {
		t.Fatalf("expected relay to drain the outbox, %d left", n)
	}

	select {
	case msg := <-sub.Channel():
		var published eventdomain.Message
		decodeJSON(t, []byte(msg.Payload), &published)
		if published.AggregateID != sent.Data.InvitationID {
			t.Fatalf("expected event for invitation %s, got %s", sent.Data.InvitationID, published.AggregateID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("invitation accepted event was not published")
	}
}

func TestE2E_SchedulerExpiresStaleInvitations(t *testing.T) {
	resetDatabase(t, env.db)
	ctx := context.Background()

	org := registerProvider(t, "Harbor Dental", "+15550210001", "ORGANIZATION")
	for _, number := range []string{"+15550210002", "+15550210003"} {
		resp, body := doJSON(t, http.MethodPost, "/v1/organizations/"+org+"/invitations", map[string]any{
			"phone_number": number,
		}, map[string]string{server.ProviderIDHeader: org})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("send invitation: status %d body %s", resp.StatusCode, body)
		}
	}

	env.clock.Advance(8 * 24 * time.Hour)
	if err := env.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}

	if n := countRows(t, env.db, "provider_invitations", "status = ?", "EXPIRED"); n != 2 {
		t.Fatalf("expected 2 expired invitations, got %d", n)
	}
	if env.mini.Exists("scheduler:lock:expire_invitations") {
		t.Fatal("expected scheduler lock to be released")
	}
}

func TestE2E_IdempotencyKeyStoredInRedis(t *testing.T) {
	resetDatabase(t, env.db)

	payload := map[string]any{
		"display_name":   "Harbor Dental",
		"phone_number":   "+15550220001",
		"hierarchy_type": "ORGANIZATION",
	}
	headers := map[string]string{server.IdempotencyKeyHeader: "register-harbor"}

	resp, body := doJSON(t, http.MethodPost, "/v1/providers", payload, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d body %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodPost, "/v1/providers", payload, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected replay to conflict, got %d body %s", resp.StatusCode, body)
	}
	if n := countRows(t, env.db, "providers", "phone_number = ?", "+15550220001"); n != 1 {
		t.Fatalf("expected one provider, got %d", n)
	}
}

func startEnv(mini *miniredis.Miniredis) (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		redisClient *redis.Client
		schedulerSv *scheduler.Scheduler
	)
	fake := clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(db.NewTest),
		fx.Provide(func() clock.Clock { return fake }),
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		migration.Module,
		server.Module,
		scheduler.Module,
		fx.Populate(&srv, &dbConn, &redisClient, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		db:        dbConn,
		redis:     redisClient,
		mini:      mini,
		clock:     fake,
		scheduler: schedulerSv,
		baseURL:   httpSrv.URL,
		httpSrv:   httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.mini != nil {
		e.mini.Close()
	}
}

func setDefaultEnv(redisAddr string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("SCHEDULER_ENABLED", "false")
	setEnvIfEmpty("INVITATION_RATE_PER_MINUTE", "0")
	_ = os.Setenv("REDIS_ADDR", redisAddr)
}

func setEnvIfEmpty(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{
		"outbox_events",
		"provider_hierarchy_audit_logs",
		"provider_join_requests",
		"provider_invitations",
		"providers",
	} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

func registerProvider(t *testing.T, name, phone, kind string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, "/v1/providers", map[string]any{
		"display_name":   name,
		"phone_number":   phone,
		"hierarchy_type": kind,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", name, resp.StatusCode, body)
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decodeJSON(t, body, &out)
	return out.Data.ID
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func decodeJSON(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode json %s: %v", data, err)
	}
}

func doJSON(t *testing.T, method, path string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
