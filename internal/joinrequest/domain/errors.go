package domain

import "github.com/smallbiznis/marketplace/pkg/domainerr"

var (
	ErrJoinRequestNotFound = domainerr.NotFound("join_request_not_found", "join request not found")

	ErrInvalidJoinRequestID        = domainerr.Validation("invalid_join_request_id", "join request id is invalid")
	ErrTextTooLong                 = domainerr.Validation("text_too_long", "message and notes must be at most 500 characters")
	ErrJoinRequestNotPending       = domainerr.Validation("join_request_not_pending", "join request is no longer pending")
	ErrDuplicatePendingJoinRequest = domainerr.Validation("duplicate_pending", "a pending join request for this organization already exists")
	ErrNotRequester                = domainerr.Validation("not_requester", "only the requester may withdraw this join request")
	ErrNotReviewingOrganization    = domainerr.Validation("not_owner", "join request belongs to another organization")
)
