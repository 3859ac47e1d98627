package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketplace/internal/authorization"
	hierarchydomain "github.com/smallbiznis/marketplace/internal/hierarchy/domain"
)

type createJoinRequestRequest struct {
	Message *string `json:"message"`
}

type reviewJoinRequestRequest struct {
	Note   *string `json:"note"`
	Reason *string `json:"reason"`
}

func (s *Server) CreateJoinRequest(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req createJoinRequestRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := s.hierarchySvc.CreateJoinRequest(c.Request.Context(), hierarchydomain.CreateJoinRequestCommand{
		OrganizationID: orgID,
		RequesterID:    actorFrom(c),
		Message:        optionalText(req.Message),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListOrganizationJoinRequests(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	status, ok := joinRequestStatus(c)
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectJoinRequest, authorization.ActionJoinRequestView) {
		return
	}

	resp, err := s.querySvc.JoinRequestsForOrganization(c.Request.Context(), orgID, status, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.JoinRequests, "page_info": resp.PageInfo})
}

func (s *Server) ApproveJoinRequest(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathUUID(c, "request_id")
	if !ok {
		return
	}
	var req reviewJoinRequestRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectJoinRequest, authorization.ActionJoinRequestReview) {
		return
	}

	result, err := s.hierarchySvc.ApproveJoinRequest(c.Request.Context(), hierarchydomain.ApproveJoinRequestCommand{
		RequestID:      requestID,
		OrganizationID: orgID,
		ReviewerID:     actorFrom(c),
		Note:           optionalText(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RejectJoinRequest(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathUUID(c, "request_id")
	if !ok {
		return
	}
	var req reviewJoinRequestRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectJoinRequest, authorization.ActionJoinRequestReview) {
		return
	}

	reason := optionalText(req.Reason)
	if reason == nil {
		reason = optionalText(req.Note)
	}
	result, err := s.hierarchySvc.RejectJoinRequest(c.Request.Context(), hierarchydomain.RejectJoinRequestCommand{
		RequestID:      requestID,
		OrganizationID: orgID,
		ReviewerID:     actorFrom(c),
		Reason:         reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetJoinRequest is visible to the requester and to whoever may view the
// organization's join requests.
func (s *Server) GetJoinRequest(c *gin.Context) {
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	req, err := s.querySvc.GetJoinRequest(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if req.RequesterID != actorFrom(c) {
		if !s.authorize(c, req.OrganizationID, authorization.ObjectJoinRequest, authorization.ActionJoinRequestView) {
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) CancelJoinRequest(c *gin.Context) {
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := s.hierarchySvc.CancelJoinRequest(c.Request.Context(), hierarchydomain.CancelJoinRequestCommand{
		RequestID:   requestID,
		RequesterID: actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
