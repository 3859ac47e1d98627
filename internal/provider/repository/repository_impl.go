package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/pkg/db/option"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, provider *domain.Provider) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO providers (id, display_name, slug, phone_number, hierarchy_type, parent_provider_id, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		provider.ID,
		provider.DisplayName,
		provider.Slug,
		provider.PhoneNumber,
		provider.HierarchyType,
		provider.ParentProviderID,
		provider.Status,
		provider.Version,
		provider.CreatedAt,
		provider.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Provider, error) {
	var provider domain.Provider
	err := db.WithContext(ctx).Raw(
		`SELECT id, display_name, slug, phone_number, hierarchy_type, parent_provider_id, status, version, created_at, updated_at
		 FROM providers WHERE id = ?`,
		id,
	).Scan(&provider).Error
	if err != nil {
		return nil, err
	}
	if provider.ID == uuid.Nil {
		return nil, nil
	}
	return &provider, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, provider *domain.Provider) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE providers
		 SET display_name = ?, hierarchy_type = ?, parent_provider_id = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		provider.DisplayName,
		provider.HierarchyType,
		provider.ParentProviderID,
		provider.Status,
		provider.UpdatedAt,
		provider.ID,
		provider.Version,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerr.ErrConcurrencyConflict
	}
	provider.Version++
	return nil
}

func (r *repo) ListStaff(ctx context.Context, db *gorm.DB, organizationID uuid.UUID, page pagination.Pagination) ([]*domain.Provider, error) {
	opt, err := option.ApplyPagination(page)
	if err != nil {
		return nil, err
	}

	var providers []*domain.Provider
	stmt := db.WithContext(ctx).
		Model(&domain.Provider{}).
		Where("parent_provider_id = ?", organizationID)
	if err := opt.Apply(stmt).Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
