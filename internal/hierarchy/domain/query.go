package domain

import (
	"context"

	"github.com/google/uuid"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
)

// InvitationView is an invitation as shown to callers. Valid reports whether
// it could still be accepted right now.
type InvitationView struct {
	invitationdomain.Invitation
	Valid bool `json:"valid"`
}

type InvitationPage struct {
	pagination.PageInfo
	Invitations []InvitationView `json:"invitations"`
}

type JoinRequestPage struct {
	pagination.PageInfo
	JoinRequests []joinrequestdomain.JoinRequest `json:"join_requests"`
}

type StaffPage struct {
	pagination.PageInfo
	Staff []providerdomain.Response `json:"staff"`
}

// QueryService answers read-side questions. It never mutates state.
type QueryService interface {
	PendingInvitationsForOrganization(ctx context.Context, organizationID uuid.UUID, page pagination.Pagination) (*InvitationPage, error)
	PendingInvitationsForPhone(ctx context.Context, phoneNumber string) ([]InvitationView, error)
	StaffRoster(ctx context.Context, organizationID uuid.UUID, page pagination.Pagination) (*StaffPage, error)
	SentJoinRequests(ctx context.Context, requesterID uuid.UUID, status joinrequestdomain.Status, page pagination.Pagination) (*JoinRequestPage, error)
	JoinRequestsForOrganization(ctx context.Context, organizationID uuid.UUID, status joinrequestdomain.Status, page pagination.Pagination) (*JoinRequestPage, error)
	GetInvitation(ctx context.Context, id uuid.UUID) (*InvitationView, error)
	GetJoinRequest(ctx context.Context, id uuid.UUID) (*joinrequestdomain.JoinRequest, error)
}
