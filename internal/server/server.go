package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/marketplace/internal/audit"
	auditdomain "github.com/smallbiznis/marketplace/internal/audit/domain"
	"github.com/smallbiznis/marketplace/internal/authorization"
	"github.com/smallbiznis/marketplace/internal/cache"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/events"
	"github.com/smallbiznis/marketplace/internal/hierarchy"
	hierarchydomain "github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	"github.com/smallbiznis/marketplace/internal/invitation"
	"github.com/smallbiznis/marketplace/internal/joinrequest"
	"github.com/smallbiznis/marketplace/internal/observability"
	obsmiddleware "github.com/smallbiznis/marketplace/internal/observability/logger"
	obstracing "github.com/smallbiznis/marketplace/internal/observability/tracing"
	"github.com/smallbiznis/marketplace/internal/provider"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/internal/ratelimit"
	"github.com/smallbiznis/marketplace/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Module = fx.Module("http.server",
	cache.Module,
	ratelimit.Module,
	provider.Module,
	invitation.Module,
	joinrequest.Module,
	events.Module,
	audit.Module,
	authorization.Module,
	hierarchy.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg  observability.Config
	Metrics *telemetry.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(APIMetrics(p.Metrics))
	r.Use(cors.New(corsConfig()))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, ProviderIDHeader, IdempotencyKeyHeader, obsmiddleware.RequestIDHeader)
	cfg.ExposeHeaders = []string{obsmiddleware.RequestIDHeader, "Retry-After"}
	return cfg
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	providerSvc    providerdomain.Service
	hierarchySvc   hierarchydomain.Service
	querySvc       hierarchydomain.QueryService
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	limiter        *ratelimit.InvitationLimiter
	idempotency    cache.IdempotencyStore
	idempotencyTTL time.Duration
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	ProviderSvc  providerdomain.Service
	HierarchySvc hierarchydomain.Service
	QuerySvc     hierarchydomain.QueryService
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	Limiter      *ratelimit.InvitationLimiter `optional:"true"`
	Idempotency  cache.IdempotencyStore       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		providerSvc:    p.ProviderSvc,
		hierarchySvc:   p.HierarchySvc,
		querySvc:       p.QuerySvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		limiter:        p.Limiter,
		idempotency:    p.Idempotency,
		idempotencyTTL: p.Cfg.IdempotencyTTL,
	}

	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/providers", s.idempotent(), s.RegisterProvider)
	v1.GET("/providers/:id", s.GetProvider)

	authed := v1.Group("", RequireActor())

	providers := authed.Group("/providers/:id")
	{
		providers.POST("/convert", s.idempotent(), s.ConvertToOrganization)
		providers.GET("/join-requests", s.ListSentJoinRequests)
		providers.GET("/audit-logs", s.ListAuditLogs)
	}

	orgs := authed.Group("/organizations/:id")
	{
		orgs.POST("/invitations", s.idempotent(), s.SendInvitation)
		orgs.GET("/invitations", s.ListOrganizationInvitations)
		orgs.POST("/invitations/:invitation_id/cancel", s.idempotent(), s.CancelInvitation)

		orgs.POST("/join-requests", s.idempotent(), s.CreateJoinRequest)
		orgs.GET("/join-requests", s.ListOrganizationJoinRequests)
		orgs.POST("/join-requests/:request_id/approve", s.idempotent(), s.ApproveJoinRequest)
		orgs.POST("/join-requests/:request_id/reject", s.idempotent(), s.RejectJoinRequest)

		orgs.GET("/staff", s.ListStaff)
		orgs.DELETE("/staff/:staff_id", s.idempotent(), s.RemoveStaffMember)
	}

	invitations := authed.Group("/invitations")
	{
		invitations.GET("", s.ListMyInvitations)
		invitations.GET("/:id", s.GetInvitation)
		invitations.POST("/:id/accept", s.idempotent(), s.AcceptInvitation)
		invitations.POST("/:id/reject", s.idempotent(), s.RejectInvitation)
	}

	joinRequests := authed.Group("/join-requests")
	{
		joinRequests.GET("/:id", s.GetJoinRequest)
		joinRequests.POST("/:id/cancel", s.idempotent(), s.CancelJoinRequest)
	}
}

func (s *Server) idempotent() gin.HandlerFunc {
	return Idempotency(s.idempotency, s.idempotencyTTL, s.log)
}
