package domain

import "github.com/smallbiznis/marketplace/pkg/domainerr"

const MaxReasonLength = 500

var (
	ErrReasonRequired = domainerr.Validation("missing_reason", "a reason is required")
	ErrReasonTooLong  = domainerr.Validation("reason_too_long", "reason must be at most 500 characters")
	ErrInvalidID      = domainerr.Validation("invalid_id", "identifier is required")
)

var ErrInvalidPageToken = domainerr.Validation("invalid_page_token", "page token is invalid")
