package authorization

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	ObjectInvitation  = "invitation"
	ObjectJoinRequest = "join_request"
	ObjectStaff       = "staff"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionInvitationSend   = "invitation.send"
	ActionInvitationCancel = "invitation.cancel"
	ActionInvitationView   = "invitation.view"

	ActionJoinRequestReview = "join_request.review"
	ActionJoinRequestView   = "join_request.view"

	ActionStaffView   = "staff.view"
	ActionStaffRemove = "staff.remove"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

type Service interface {
	// Authorize fails with ErrForbidden unless actorID's role in
	// organizationID grants action on object.
	Authorize(ctx context.Context, actorID, organizationID uuid.UUID, object, action string) error
	RoleFor(ctx context.Context, actorID, organizationID uuid.UUID) (StaffRole, error)
}
