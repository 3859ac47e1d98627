package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, provider *Provider) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Provider, error)
	// Update persists provider if its stored version still equals
	// provider.Version and bumps the version. A stale version yields
	// domainerr.ErrConcurrencyConflict.
	Update(ctx context.Context, db *gorm.DB, provider *Provider) error
	ListStaff(ctx context.Context, db *gorm.DB, organizationID uuid.UUID, page pagination.Pagination) ([]*Provider, error)
}
