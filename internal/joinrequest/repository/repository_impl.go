package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/db/option"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"gorm.io/gorm"
)

const columns = `id, organization_id, requester_id, message, status, reviewed_at, reviewed_by,
	review_note, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, request *domain.JoinRequest) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO provider_join_requests (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID,
		request.OrganizationID,
		request.RequesterID,
		request.Message,
		request.Status,
		request.ReviewedAt,
		request.ReviewedBy,
		request.ReviewNote,
		request.Version,
		request.CreatedAt,
		request.UpdatedAt,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicatePendingJoinRequest
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id uuid.UUID) (*domain.JoinRequest, error) {
	var request domain.JoinRequest
	err := conn.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM provider_join_requests WHERE id = ?`,
		id,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == uuid.Nil {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) FindPending(ctx context.Context, conn *gorm.DB, organizationID, requesterID uuid.UUID) (*domain.JoinRequest, error) {
	var request domain.JoinRequest
	err := conn.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM provider_join_requests
		 WHERE organization_id = ? AND requester_id = ? AND status = ?
		 LIMIT 1`,
		organizationID,
		requesterID,
		domain.StatusPending,
	).Scan(&request).Error
	if err != nil {
		return nil, err
	}
	if request.ID == uuid.Nil {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, request *domain.JoinRequest) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE provider_join_requests
		 SET status = ?, reviewed_at = ?, reviewed_by = ?, review_note = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		request.Status,
		request.ReviewedAt,
		request.ReviewedBy,
		request.ReviewNote,
		request.UpdatedAt,
		request.ID,
		request.Version,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerr.ErrConcurrencyConflict
	}
	request.Version++
	return nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.JoinRequest, error) {
	opt, err := option.ApplyPagination(page)
	if err != nil {
		return nil, err
	}

	stmt := conn.WithContext(ctx).Model(&domain.JoinRequest{})
	if filter.OrganizationID != nil {
		stmt = stmt.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.RequesterID != nil {
		stmt = stmt.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var requests []*domain.JoinRequest
	if err := opt.Apply(stmt).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
