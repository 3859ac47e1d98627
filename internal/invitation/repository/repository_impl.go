package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/invitation/domain"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/db/option"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const columns = `id, organization_id, phone_number, invitee_name, message, status, expires_at,
	responded_at, accepted_by_provider_id, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, invitation *domain.Invitation) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO provider_invitations (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invitation.ID,
		invitation.OrganizationID,
		invitation.PhoneNumber,
		invitation.InviteeName,
		invitation.Message,
		invitation.Status,
		invitation.ExpiresAt,
		invitation.RespondedAt,
		invitation.AcceptedByProviderID,
		invitation.Version,
		invitation.CreatedAt,
		invitation.UpdatedAt,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicatePendingInvitation
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id uuid.UUID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := conn.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM provider_invitations WHERE id = ?`,
		id,
	).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == uuid.Nil {
		return nil, nil
	}
	return &invitation, nil
}

func (r *repo) FindPending(ctx context.Context, conn *gorm.DB, organizationID uuid.UUID, phoneNumber string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := conn.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM provider_invitations
		 WHERE organization_id = ? AND phone_number = ? AND status = ?
		 LIMIT 1`,
		organizationID,
		phoneNumber,
		domain.StatusPending,
	).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == uuid.Nil {
		return nil, nil
	}
	return &invitation, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, invitation *domain.Invitation) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE provider_invitations
		 SET status = ?, responded_at = ?, accepted_by_provider_id = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		invitation.Status,
		invitation.RespondedAt,
		invitation.AcceptedByProviderID,
		invitation.UpdatedAt,
		invitation.ID,
		invitation.Version,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerr.ErrConcurrencyConflict
	}
	invitation.Version++
	return nil
}

// ListExpiredPending returns Pending invitations whose deadline passed before
// now, oldest deadline first. On Postgres rows locked by a concurrent sweep
// are skipped.
func (r *repo) ListExpiredPending(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]*domain.Invitation, error) {
	var invitations []*domain.Invitation
	stmt := conn.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("status = ? AND expires_at < ?", domain.StatusPending, now.UTC()).
		Order("expires_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if conn.Dialector.Name() == "postgres" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	if err := stmt.Find(&invitations).Error; err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Invitation, error) {
	opt, err := option.ApplyPagination(page)
	if err != nil {
		return nil, err
	}

	stmt := conn.WithContext(ctx).Model(&domain.Invitation{})
	if filter.OrganizationID != nil {
		stmt = stmt.Where("organization_id = ?", *filter.OrganizationID)
	}
	if phoneNumber := strings.TrimSpace(filter.PhoneNumber); phoneNumber != "" {
		stmt = stmt.Where("phone_number = ?", phoneNumber)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ValidAt != nil {
		stmt = stmt.Where("expires_at >= ?", filter.ValidAt.UTC())
	}

	var invitations []*domain.Invitation
	if err := opt.Apply(stmt).Find(&invitations).Error; err != nil {
		return nil, err
	}
	return invitations, nil
}
