package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
)

type pageQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

func (q pageQuery) pagination() pagination.Pagination {
	return pagination.Pagination{
		PageToken: strings.TrimSpace(q.PageToken),
		PageSize:  q.PageSize,
	}
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		AbortWithError(c, invalidField(name))
		return uuid.Nil, false
	}
	return id, true
}

func bindPage(c *gin.Context) (pagination.Pagination, bool) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.PageSize < 0 {
		AbortWithError(c, invalidField("page_size"))
		return pagination.Pagination{}, false
	}
	return q.pagination(), true
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return false
	}
	return true
}

func joinRequestStatus(c *gin.Context) (joinrequestdomain.Status, bool) {
	raw := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	switch status := joinrequestdomain.Status(raw); status {
	case "":
		return "", true
	case joinrequestdomain.StatusPending,
		joinrequestdomain.StatusApproved,
		joinrequestdomain.StatusRejected,
		joinrequestdomain.StatusWithdrawn:
		return status, true
	default:
		AbortWithError(c, invalidField("status"))
		return "", false
	}
}

func optionalText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
