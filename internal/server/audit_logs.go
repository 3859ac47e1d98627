package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/marketplace/internal/audit/domain"
	"github.com/smallbiznis/marketplace/internal/authorization"
)

type listAuditLogsQuery struct {
	pageQuery
	Action string `form:"action"`
}

// ListAuditLogs shows a provider's hierarchy history to the provider itself
// and to the owner of the organization it belongs to.
func (s *Server) ListAuditLogs(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.PageSize < 0 {
		AbortWithError(c, invalidField("page_size"))
		return
	}

	if actorFrom(c) != providerID {
		target, err := s.providerSvc.GetByID(c.Request.Context(), providerID.String())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if target.ParentProviderID == nil {
			AbortWithError(c, authorization.ErrForbidden)
			return
		}
		orgID, err := uuid.Parse(*target.ParentProviderID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !s.authorize(c, orgID, authorization.ObjectAuditLog, authorization.ActionAuditLogView) {
			return
		}
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: query.pagination(),
		ProviderID: providerID.String(),
		Action:     strings.TrimSpace(query.Action),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
