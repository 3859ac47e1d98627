package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/authorization"
	hierarchydomain "github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
)

func (s *Server) RegisterProvider(c *gin.Context) {
	var req providerdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.providerSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetProvider(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := s.providerSvc.GetByID(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConvertToOrganization(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if actorFrom(c) != providerID {
		AbortWithError(c, authorization.ErrForbidden)
		return
	}

	result, err := s.hierarchySvc.ConvertToOrganization(c.Request.Context(), hierarchydomain.ConvertToOrganizationCommand{
		ProviderID: providerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListSentJoinRequests(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if actorFrom(c) != providerID {
		AbortWithError(c, authorization.ErrForbidden)
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

	resp, err := s.querySvc.SentJoinRequests(c.Request.Context(), providerID, status, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.JoinRequests, "page_info": resp.PageInfo})
}

// actorProvider loads the calling provider. An actor that does not exist is
// treated as unauthenticated.
func (s *Server) actorProvider(c *gin.Context) (*providerdomain.Response, bool) {
	actor, err := s.providerSvc.GetByID(c.Request.Context(), actorFrom(c).String())
	if err != nil {
		if providerNotFound(err) {
			err = ErrUnauthorized
		}
		AbortWithError(c, err)
		return nil, false
	}
	return actor, true
}

func providerNotFound(err error) bool {
	return errors.Is(err, providerdomain.ErrProviderNotFound) || errors.Is(err, providerdomain.ErrInvalidProviderID)
}

func (s *Server) authorize(c *gin.Context, organizationID uuid.UUID, object, action string) bool {
	if err := s.authzSvc.Authorize(c.Request.Context(), actorFrom(c), organizationID, object, action); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}
