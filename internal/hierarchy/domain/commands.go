// Package domain declares the hierarchy workflow commands, their results and
// the read-side queries over invitations, join requests and staff.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
)

type SendInvitationCommand struct {
	OrganizationID uuid.UUID
	PhoneNumber    string
	InviteeName    *string
	Message        *string
}

type SendInvitationResult struct {
	InvitationID   uuid.UUID               `json:"invitation_id"`
	OrganizationID uuid.UUID               `json:"organization_id"`
	PhoneNumber    string                  `json:"phone_number"`
	Status         invitationdomain.Status `json:"status"`
	ExpiresAt      time.Time               `json:"expires_at"`
	CreatedAt      time.Time               `json:"created_at"`
}

type AcceptInvitationCommand struct {
	InvitationID         uuid.UUID
	IndividualProviderID uuid.UUID
}

type AcceptInvitationResult struct {
	InvitationID         uuid.UUID `json:"invitation_id"`
	OrganizationID       uuid.UUID `json:"organization_id"`
	IndividualProviderID uuid.UUID `json:"individual_provider_id"`
	AcceptedAt           time.Time `json:"accepted_at"`
}

type RejectInvitationCommand struct {
	InvitationID         uuid.UUID
	IndividualProviderID uuid.UUID
}

type RejectInvitationResult struct {
	InvitationID uuid.UUID               `json:"invitation_id"`
	Status       invitationdomain.Status `json:"status"`
	RejectedAt   time.Time               `json:"rejected_at"`
}

type CancelInvitationCommand struct {
	InvitationID   uuid.UUID
	OrganizationID uuid.UUID
}

type CancelInvitationResult struct {
	InvitationID uuid.UUID `json:"invitation_id"`
	Cancelled    bool      `json:"cancelled"`
	CancelledAt  time.Time `json:"cancelled_at"`
}

type CreateJoinRequestCommand struct {
	OrganizationID uuid.UUID
	RequesterID    uuid.UUID
	Message        *string
}

type CreateJoinRequestResult struct {
	RequestID      uuid.UUID                `json:"request_id"`
	OrganizationID uuid.UUID                `json:"organization_id"`
	RequesterID    uuid.UUID                `json:"requester_id"`
	Status         joinrequestdomain.Status `json:"status"`
	CreatedAt      time.Time                `json:"created_at"`
}

// ApproveJoinRequestCommand is issued by OrganizationID, which must own the
// request. ReviewerID is recorded as the reviewer.
type ApproveJoinRequestCommand struct {
	RequestID      uuid.UUID
	OrganizationID uuid.UUID
	ReviewerID     uuid.UUID
	Note           *string
}

type ApproveJoinRequestResult struct {
	RequestID      uuid.UUID `json:"request_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	RequesterID    uuid.UUID `json:"requester_id"`
	ApprovedAt     time.Time `json:"approved_at"`
}

type RejectJoinRequestCommand struct {
	RequestID      uuid.UUID
	OrganizationID uuid.UUID
	ReviewerID     uuid.UUID
	Reason         *string
}

type RejectJoinRequestResult struct {
	RequestID  uuid.UUID                `json:"request_id"`
	Status     joinrequestdomain.Status `json:"status"`
	RejectedAt time.Time                `json:"rejected_at"`
}

type CancelJoinRequestCommand struct {
	RequestID   uuid.UUID
	RequesterID uuid.UUID
}

type CancelJoinRequestResult struct {
	RequestID uuid.UUID                `json:"request_id"`
	Status    joinrequestdomain.Status `json:"status"`
}

type ConvertToOrganizationCommand struct {
	ProviderID uuid.UUID
}

type ConvertToOrganizationResult struct {
	ProviderID    uuid.UUID                    `json:"provider_id"`
	HierarchyType providerdomain.HierarchyType `json:"hierarchy_type"`
	ConvertedAt   time.Time                    `json:"converted_at"`
}

type RemoveStaffMemberCommand struct {
	OrganizationID  uuid.UUID
	StaffProviderID uuid.UUID
	Reason          string
}

type RemoveStaffMemberResult struct {
	OrganizationID  uuid.UUID `json:"organization_id"`
	StaffProviderID uuid.UUID `json:"staff_provider_id"`
	RemovedAt       time.Time `json:"removed_at"`
}

type ExpireInvitationsCommand struct {
	Limit int
}

type ExpireInvitationsResult struct {
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

// Service runs each command as one transaction over the aggregates it touches.
type Service interface {
	SendInvitation(ctx context.Context, cmd SendInvitationCommand) (*SendInvitationResult, error)
	AcceptInvitation(ctx context.Context, cmd AcceptInvitationCommand) (*AcceptInvitationResult, error)
	RejectInvitation(ctx context.Context, cmd RejectInvitationCommand) (*RejectInvitationResult, error)
	CancelInvitation(ctx context.Context, cmd CancelInvitationCommand) (*CancelInvitationResult, error)
	CreateJoinRequest(ctx context.Context, cmd CreateJoinRequestCommand) (*CreateJoinRequestResult, error)
	ApproveJoinRequest(ctx context.Context, cmd ApproveJoinRequestCommand) (*ApproveJoinRequestResult, error)
	RejectJoinRequest(ctx context.Context, cmd RejectJoinRequestCommand) (*RejectJoinRequestResult, error)
	CancelJoinRequest(ctx context.Context, cmd CancelJoinRequestCommand) (*CancelJoinRequestResult, error)
	ConvertToOrganization(ctx context.Context, cmd ConvertToOrganizationCommand) (*ConvertToOrganizationResult, error)
	RemoveStaffMember(ctx context.Context, cmd RemoveStaffMemberCommand) (*RemoveStaffMemberResult, error)
	ExpireInvitations(ctx context.Context, cmd ExpireInvitationsCommand) (*ExpireInvitationsResult, error)
}
