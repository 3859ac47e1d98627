package option

import (
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"gorm.io/gorm"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type QueryOptionFunc func(*gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination orders newest first on (created_at, id) and fetches one row
// past the page so callers can detect HasMore. The page token must have been
// produced by pagination.CursorFor.
func ApplyPagination(page pagination.Pagination) (QueryOption, error) {
	page = page.Normalize()

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(page.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil || decoded.ID == "" {
			return nil, ErrInvalidPageToken
		}
		cursor = decoded
	}

	var createdAt time.Time
	if cursor != nil {
		parsed, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, ErrInvalidPageToken
		}
		createdAt = parsed
	}

	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursor.ID)
		}
		return db.Order("created_at desc").Order("id desc").Limit(page.PageSize + 1)
	}), nil
}
