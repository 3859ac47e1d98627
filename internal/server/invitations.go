package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/authorization"
	hierarchydomain "github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	"github.com/smallbiznis/marketplace/pkg/phone"
	"go.uber.org/zap"
)

type sendInvitationRequest struct {
	PhoneNumber string  `json:"phone_number"`
	InviteeName *string `json:"invitee_name"`
	Message     *string `json:"message"`
}

func (s *Server) SendInvitation(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req sendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectInvitation, authorization.ActionInvitationSend) {
		return
	}
	if !s.allowInvitation(c, orgID) {
		return
	}

	result, err := s.hierarchySvc.SendInvitation(c.Request.Context(), hierarchydomain.SendInvitationCommand{
		OrganizationID: orgID,
		PhoneNumber:    req.PhoneNumber,
		InviteeName:    optionalText(req.InviteeName),
		Message:        optionalText(req.Message),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// allowInvitation applies the per-organization send limit. A limiter backend
// failure lets the request through.
func (s *Server) allowInvitation(c *gin.Context, orgID uuid.UUID) bool {
	if s.limiter == nil {
		return true
	}
	res, err := s.limiter.Allow(c.Request.Context(), orgID.String())
	if err != nil {
		s.log.Warn("invitation rate limiter unavailable", zap.Error(err))
		return true
	}
	if res.Allowed {
		return true
	}
	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	AbortWithError(c, ErrRateLimited)
	return false
}

func (s *Server) ListOrganizationInvitations(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectInvitation, authorization.ActionInvitationView) {
		return
	}

	resp, err := s.querySvc.PendingInvitationsForOrganization(c.Request.Context(), orgID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invitations, "page_info": resp.PageInfo})
}

func (s *Server) CancelInvitation(c *gin.Context) {
	orgID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	invitationID, ok := pathUUID(c, "invitation_id")
	if !ok {
		return
	}
	if !s.authorize(c, orgID, authorization.ObjectInvitation, authorization.ActionInvitationCancel) {
		return
	}

	result, err := s.hierarchySvc.CancelInvitation(c.Request.Context(), hierarchydomain.CancelInvitationCommand{
		InvitationID:   invitationID,
		OrganizationID: orgID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListMyInvitations returns the invitations addressed to the caller's phone
// number that can still be accepted.
func (s *Server) ListMyInvitations(c *gin.Context) {
	actor, ok := s.actorProvider(c)
	if !ok {
		return
	}

	number := actor.PhoneNumber
	if raw := strings.TrimSpace(c.Query("phone")); raw != "" {
		normalized, err := phone.Normalize(raw)
		if err != nil {
			AbortWithError(c, invalidField("phone"))
			return
		}
		if normalized != actor.PhoneNumber {
			AbortWithError(c, authorization.ErrForbidden)
			return
		}
		number = normalized
	}

	views, err := s.querySvc.PendingInvitationsForPhone(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": views})
}

// GetInvitation is visible to the invitee and to whoever may view the
// organization's invitations.
func (s *Server) GetInvitation(c *gin.Context) {
	invitationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	inv, err := s.querySvc.GetInvitation(c.Request.Context(), invitationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actor, ok := s.actorProvider(c)
	if !ok {
		return
	}
	if actor.PhoneNumber != inv.PhoneNumber {
		if !s.authorize(c, inv.OrganizationID, authorization.ObjectInvitation, authorization.ActionInvitationView) {
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	invitationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := s.hierarchySvc.AcceptInvitation(c.Request.Context(), hierarchydomain.AcceptInvitationCommand{
		InvitationID:         invitationID,
		IndividualProviderID: actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RejectInvitation(c *gin.Context) {
	invitationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := s.hierarchySvc.RejectInvitation(c.Request.Context(), hierarchydomain.RejectInvitationCommand{
		InvitationID:         invitationID,
		IndividualProviderID: actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
