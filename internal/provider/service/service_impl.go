package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrDuplicateProvider = domainerr.Validation("duplicate_provider", "a provider with this id already exists")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("provider.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Response, error) {
	hierarchyType := domain.HierarchyType(strings.ToUpper(strings.TrimSpace(string(req.HierarchyType))))
	if hierarchyType == "" {
		hierarchyType = domain.HierarchyIndividual
	}

	provider, err := domain.NewProvider(uuid.New(), req.DisplayName, req.PhoneNumber, hierarchyType, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, provider); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ErrDuplicateProvider
		}
		return nil, err
	}

	s.log.Info("provider registered",
		zap.String("provider_id", provider.ID.String()),
		zap.String("hierarchy_type", string(provider.HierarchyType)),
	)
	return domain.ToResponse(provider), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Response, error) {
	providerID, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	provider, err := s.repo.FindByID(ctx, s.db, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, domain.ErrProviderNotFound
	}
	return domain.ToResponse(provider), nil
}

// ParseID parses a provider identifier supplied by a caller.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidProviderID
	}
	return id, nil
}
