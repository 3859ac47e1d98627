package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrganizationID *uuid.UUID
	RequesterID    *uuid.UUID
	Status         Status
}

type Repository interface {
	// Insert returns ErrDuplicatePendingJoinRequest when the pending
	// uniqueness index rejects the row.
	Insert(ctx context.Context, db *gorm.DB, request *JoinRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*JoinRequest, error)
	FindPending(ctx context.Context, db *gorm.DB, organizationID, requesterID uuid.UUID) (*JoinRequest, error)
	Update(ctx context.Context, db *gorm.DB, request *JoinRequest) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*JoinRequest, error)
}
