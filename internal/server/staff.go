package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketplace/internal/authorization"
	hierarchydomain "github.com/smallbiznis/marketplace/internal/hierarchy/domain"
)

type removeStaffRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListStaff(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectStaff, authorization.ActionStaffView) {
		return
	}

	resp, err := s.querySvc.StaffRoster(c.Request.Context(), orgID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Staff, "page_info": resp.PageInfo})
}

func (s *Server) RemoveStaffMember(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	staffID, ok := pathUUID(c, "staff_id")
	if !ok {
		return
	}
	var req removeStaffRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectStaff, authorization.ActionStaffRemove) {
		return
	}

	result, err := s.hierarchySvc.RemoveStaffMember(c.Request.Context(), hierarchydomain.RemoveStaffMemberCommand{
		OrganizationID:  orgID,
		StaffProviderID: staffID,
		Reason:          req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
