package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/marketplace/internal/audit/domain"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/config"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	obslogger "github.com/smallbiznis/marketplace/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/marketplace/internal/observability/metrics"
	"github.com/smallbiznis/marketplace/internal/observability/tracing"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "marketplace/hierarchy"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Policy          *config.PolicyHolder
	ProviderRepo    providerdomain.Repository
	InvitationRepo  invitationdomain.Repository
	JoinRequestRepo joinrequestdomain.Repository
	Outbox          eventdomain.Outbox
	AuditSvc        auditdomain.Service
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	policy          *config.PolicyHolder
	providerRepo    providerdomain.Repository
	invitationRepo  invitationdomain.Repository
	joinRequestRepo joinrequestdomain.Repository
	outbox          eventdomain.Outbox
	auditSvc        auditdomain.Service
	metrics         *obsmetrics.Metrics
	tracer          trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("hierarchy.service"),
		clock:           p.Clock,
		policy:          p.Policy,
		providerRepo:    p.ProviderRepo,
		invitationRepo:  p.InvitationRepo,
		joinRequestRepo: p.JoinRequestRepo,
		outbox:          p.Outbox,
		auditSvc:        p.AuditSvc,
		metrics:         p.Metrics,
		tracer:          otel.Tracer(tracerName),
	}
}

// unit is the state of one command transaction.
type unit struct {
	tx          *gorm.DB
	now         time.Time
	transitions [][2]string
}

func (u *unit) transition(aggregate string, to string) {
	u.transitions = append(u.transitions, [2]string{aggregate, to})
}

// commitThenFail asks execute to commit the transaction and still return err.
type commitThenFail struct {
	err error
}

func (c *commitThenFail) Error() string { return c.err.Error() }

func (c *commitThenFail) Unwrap() error { return c.err }

// execute runs fn in a transaction with a span, command metrics and logging.
func (s *Service) execute(ctx context.Context, command string, attrs []attribute.KeyValue, fn func(ctx context.Context, u *unit) error) error {
	ctx, span := s.tracer.Start(ctx, "hierarchy."+command,
		trace.WithAttributes(tracing.SafeAttributes(attrs...)...),
	)
	defer span.End()

	start := time.Now()
	u := &unit{now: s.clock.Now()}

	var afterCommit error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u.tx = tx
		err := fn(ctx, u)
		var deferred *commitThenFail
		if errors.As(err, &deferred) {
			afterCommit = deferred.err
			return nil
		}
		return err
	})
	if err == nil {
		for _, t := range u.transitions {
			s.metrics.RecordTransition(ctx, t[0], t[1])
		}
		err = afterCommit
	}

	outcome := outcomeOf(err)
	s.metrics.ObserveCommand(ctx, command, outcome, time.Since(start))

	log := obslogger.WithContext(ctx, s.log).With(zap.String("command", command))
	switch outcome {
	case "ok":
		span.SetStatus(codes.Ok, "")
	case "conflict":
		s.metrics.RecordConflict(ctx, command)
		span.RecordError(tracing.SafeError(err))
		log.Warn("command lost a concurrent update", zap.Error(err))
	case "not_found", "validation":
		span.RecordError(tracing.SafeError(err))
		log.Debug("command rejected", zap.String("outcome", outcome), zap.Error(err))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "command failed")
		log.Error("command failed", zap.Error(err))
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domainerr.IsConcurrencyConflict(err):
		return "conflict"
	case domainerr.IsNotFound(err):
		return "not_found"
	case domainerr.IsValidation(err):
		return "validation"
	default:
		return "error"
	}
}

func (s *Service) expirationDays() int {
	if s.policy == nil {
		return invitationdomain.DefaultExpirationDays
	}
	return s.policy.Get().InvitationExpirationDays
}

func (s *Service) loadProvider(ctx context.Context, u *unit, id uuid.UUID, notFound error) (*providerdomain.Provider, error) {
	provider, err := s.providerRepo.FindByID(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, notFound
	}
	return provider, nil
}

// loadOrganization loads id and checks it is a participating Organization.
func (s *Service) loadOrganization(ctx context.Context, u *unit, id uuid.UUID) (*providerdomain.Provider, error) {
	org, err := s.loadProvider(ctx, u, id, providerdomain.ErrOrganizationNotFound)
	if err != nil {
		return nil, err
	}
	if !org.IsOrganization() {
		return nil, providerdomain.ErrNotOrganization
	}
	if err := org.EnsureParticipating(); err != nil {
		return nil, err
	}
	return org, nil
}

// loadLinkableIndividual loads id and checks it may be linked to an organization.
func (s *Service) loadLinkableIndividual(ctx context.Context, u *unit, id uuid.UUID) (*providerdomain.Provider, error) {
	individual, err := s.loadProvider(ctx, u, id, providerdomain.ErrProviderNotFound)
	if err != nil {
		return nil, err
	}
	if err := ensureLinkable(individual); err != nil {
		return nil, err
	}
	return individual, nil
}

func ensureLinkable(p *providerdomain.Provider) error {
	if !p.IsIndividual() {
		return providerdomain.ErrNotIndividual
	}
	if err := p.EnsureParticipating(); err != nil {
		return err
	}
	if p.IsLinked() {
		return providerdomain.ErrAlreadyLinked
	}
	return nil
}

func (s *Service) loadInvitation(ctx context.Context, u *unit, id uuid.UUID) (*invitationdomain.Invitation, error) {
	inv, err := s.invitationRepo.FindByID(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invitationdomain.ErrInvitationNotFound
	}
	return inv, nil
}

func (s *Service) loadJoinRequest(ctx context.Context, u *unit, id uuid.UUID) (*joinrequestdomain.JoinRequest, error) {
	req, err := s.joinRequestRepo.FindByID(ctx, u.tx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, joinrequestdomain.ErrJoinRequestNotFound
	}
	return req, nil
}

// link persists the individual's new parent together with its audit entry.
func (s *Service) link(ctx context.Context, u *unit, individual *providerdomain.Provider, organizationID uuid.UUID, source string, sourceID uuid.UUID) error {
	individual.LinkToOrganization(organizationID, u.now)
	if err := s.providerRepo.Update(ctx, u.tx, individual); err != nil {
		return err
	}
	return s.auditSvc.Record(ctx, u.tx, auditdomain.Entry{
		ProviderID:     individual.ID.String(),
		OrganizationID: organizationID.String(),
		Action:         auditdomain.ActionLinked,
		Metadata: map[string]any{
			"source":    source,
			"source_id": sourceID.String(),
		},
	})
}

func (s *Service) publish(ctx context.Context, u *unit, events ...eventdomain.Event) error {
	return s.outbox.Append(ctx, u.tx, events...)
}

func requireID(ids ...uuid.UUID) error {
	for _, id := range ids {
		if id == uuid.Nil {
			return domain.ErrInvalidID
		}
	}
	return nil
}
