package domain

import "github.com/smallbiznis/marketplace/pkg/domainerr"

var (
	ErrInvitationNotFound = domainerr.NotFound("invitation_not_found", "invitation not found")

	ErrInvalidInvitationID        = domainerr.Validation("invalid_invitation_id", "invitation id is invalid")
	ErrInvalidPhoneNumber         = domainerr.Validation("invalid_phone_number", "phone number must be in E.164 format")
	ErrInviteeNameTooLong         = domainerr.Validation("invitee_name_too_long", "invitee name must be at most 120 characters")
	ErrMessageTooLong             = domainerr.Validation("message_too_long", "message must be at most 500 characters")
	ErrInvitationNotPending       = domainerr.Validation("invitation_not_pending", "invitation is no longer pending")
	ErrInvitationExpired          = domainerr.Validation("invitation_expired", "invitation has expired")
	ErrDuplicatePendingInvitation = domainerr.Validation("duplicate_pending", "a pending invitation for this phone number already exists")
	ErrNotInvitationOwner         = domainerr.Validation("not_owner", "invitation belongs to another organization")
	ErrNotInvitee                 = domainerr.Validation("not_invitee", "invitation was sent to a different phone number")
)
