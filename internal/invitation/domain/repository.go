package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrganizationID *uuid.UUID
	PhoneNumber    string
	Status         Status
	// ValidAt drops invitations whose deadline passed before it.
	ValidAt *time.Time
}

type Repository interface {
	// Insert returns ErrDuplicatePendingInvitation when the pending
	// uniqueness index rejects the row.
	Insert(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Invitation, error)
	FindPending(ctx context.Context, db *gorm.DB, organizationID uuid.UUID, phoneNumber string) (*Invitation, error)
	// Update is version-checked like the provider repository.
	Update(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	ListExpiredPending(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Invitation, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Invitation, error)
}
