package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	ProviderID string
	Action     string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Entry describes one hierarchy change to record.
type Entry struct {
	ProviderID     string
	OrganizationID string
	ActorID        string
	Action         Action
	Reason         string
	Metadata       map[string]any
}

type Service interface {
	// Record writes entry using db, which is normally the command transaction.
	Record(ctx context.Context, db *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
