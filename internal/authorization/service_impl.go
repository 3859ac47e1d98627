package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Enforcer     *casbin.SyncedEnforcer
	ProviderRepo providerdomain.Repository
}

type ServiceImpl struct {
	db           *gorm.DB
	log          *zap.Logger
	enforcer     *casbin.SyncedEnforcer
	providerRepo providerdomain.Repository
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:           p.DB,
		log:          p.Log.Named("authorization.service"),
		enforcer:     p.Enforcer,
		providerRepo: p.ProviderRepo,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actorID, organizationID uuid.UUID, object, action string) error {
	if actorID == uuid.Nil {
		return ErrInvalidActor
	}
	if organizationID == uuid.Nil {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := s.RoleFor(ctx, actorID, organizationID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("provider:%s", actorID)
	domain := fmt.Sprintf("org:%s", organizationID)
	if err := s.ensureGrouping(subject, role.Subject(), domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor_id", actorID.String()),
			zap.String("organization_id", organizationID.String()),
			zap.String("role", role.String()),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) RoleFor(ctx context.Context, actorID, organizationID uuid.UUID) (StaffRole, error) {
	if actorID == organizationID {
		return RoleOwner, nil
	}
	actor, err := s.providerRepo.FindByID(ctx, s.db, actorID)
	if err != nil {
		return RoleGuest, err
	}
	if actor == nil {
		return RoleGuest, ErrInvalidActor
	}
	return RoleOf(actor, organizationID), nil
}

// ensureGrouping keeps exactly one role link for subject in domain.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]any, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	owner := RoleOwner.Subject()
	staff := RoleStaff.Subject()

	policies := [][]string{
		{owner, ObjectInvitation, ActionInvitationSend},
		{owner, ObjectInvitation, ActionInvitationCancel},
		{owner, ObjectInvitation, ActionInvitationView},
		{owner, ObjectJoinRequest, ActionJoinRequestReview},
		{owner, ObjectJoinRequest, ActionJoinRequestView},
		{owner, ObjectStaff, ActionStaffView},
		{owner, ObjectStaff, ActionStaffRemove},
		{owner, ObjectAuditLog, ActionAuditLogView},

		{staff, ObjectStaff, ActionStaffView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
