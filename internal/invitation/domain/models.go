// Package domain contains the ProviderInvitation aggregate.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/pkg/phone"
	"golang.org/x/text/unicode/norm"
)

const AggregateType = "provider_invitation"

const DefaultExpirationDays = 7

const (
	maxInviteeNameLength = 120
	maxMessageLength     = 500
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Invitation is an organization's outstanding offer to a phone number.
type Invitation struct {
	ID                   uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrganizationID       uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	PhoneNumber          string     `gorm:"type:varchar(20);not null;index" json:"phone_number"`
	InviteeName          *string    `gorm:"type:varchar(120)" json:"invitee_name,omitempty"`
	Message              *string    `gorm:"type:varchar(500)" json:"message,omitempty"`
	Status               Status     `gorm:"type:varchar(16);not null;index" json:"status"`
	ExpiresAt            time.Time  `gorm:"not null;index" json:"expires_at"`
	RespondedAt          *time.Time `json:"responded_at,omitempty"`
	AcceptedByProviderID *uuid.UUID `gorm:"type:varchar(36)" json:"accepted_by_provider_id,omitempty"`
	Version              int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"not null" json:"updated_at"`

	events eventdomain.Recorder
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "provider_invitations" }

// Create is the only constructor into Pending. A non-positive expirationDays
// falls back to DefaultExpirationDays.
func Create(id, organizationID uuid.UUID, phoneNumber string, inviteeName, message *string, expirationDays int, now time.Time) (*Invitation, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, ErrInvalidPhoneNumber
	}
	name, err := optionalText(inviteeName, maxInviteeNameLength, ErrInviteeNameTooLong)
	if err != nil {
		return nil, err
	}
	msg, err := optionalText(message, maxMessageLength, ErrMessageTooLong)
	if err != nil {
		return nil, err
	}
	if expirationDays <= 0 {
		expirationDays = DefaultExpirationDays
	}

	now = now.UTC()
	inv := &Invitation{
		ID:             id,
		OrganizationID: organizationID,
		PhoneNumber:    normalized,
		InviteeName:    name,
		Message:        msg,
		Status:         StatusPending,
		ExpiresAt:      now.AddDate(0, 0, expirationDays),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inv.events.Record(eventdomain.Event{
		Topic:         eventdomain.TopicInvitationSent,
		AggregateType: AggregateType,
		AggregateID:   id.String(),
		OccurredAt:    now,
		Payload: map[string]any{
			"invitation_id":   id.String(),
			"organization_id": organizationID.String(),
			"phone_number":    normalized,
			"expires_at":      inv.ExpiresAt,
		},
	})
	return inv, nil
}

// IsValid reports whether the invitation can still be accepted at now.
func (i *Invitation) IsValid(now time.Time) bool {
	return i.Status == StatusPending && !now.After(i.ExpiresAt)
}

// Accept links the invitation to the accepting individual. Accepting past
// ExpiresAt flips the status to Expired and returns ErrInvitationExpired; the
// caller must persist that transition.
func (i *Invitation) Accept(individualProviderID uuid.UUID, now time.Time) error {
	if i.Status != StatusPending {
		return ErrInvitationNotPending
	}
	now = now.UTC()
	if now.After(i.ExpiresAt) {
		i.Status = StatusExpired
		i.UpdatedAt = now
		return ErrInvitationExpired
	}

	accepter := individualProviderID
	i.Status = StatusAccepted
	i.RespondedAt = &now
	i.AcceptedByProviderID = &accepter
	i.UpdatedAt = now
	i.events.Record(eventdomain.Event{
		Topic:         eventdomain.TopicInvitationAccepted,
		AggregateType: AggregateType,
		AggregateID:   i.ID.String(),
		OccurredAt:    now,
		Payload: map[string]any{
			"invitation_id":   i.ID.String(),
			"organization_id": i.OrganizationID.String(),
			"provider_id":     accepter.String(),
		},
	})
	return nil
}

func (i *Invitation) Reject(now time.Time) error {
	return i.respond(StatusRejected, now)
}

// Cancel withdraws the offer. Ownership is checked by the caller.
func (i *Invitation) Cancel(now time.Time) error {
	return i.respond(StatusCancelled, now)
}

// MarkAsExpired flips a Pending invitation past its deadline to Expired and
// reports whether it did. Safe to call repeatedly.
func (i *Invitation) MarkAsExpired(now time.Time) bool {
	if i.Status != StatusPending || !now.After(i.ExpiresAt) {
		return false
	}
	i.Status = StatusExpired
	i.UpdatedAt = now.UTC()
	return true
}

func (i *Invitation) respond(to Status, now time.Time) error {
	if i.Status != StatusPending {
		return ErrInvitationNotPending
	}
	now = now.UTC()
	i.Status = to
	i.RespondedAt = &now
	i.UpdatedAt = now
	return nil
}

// PullEvents returns and clears the events raised since the last pull.
func (i *Invitation) PullEvents() []eventdomain.Event {
	return i.events.Pull()
}

func optionalText(value *string, limit int, tooLong error) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := norm.NFC.String(strings.TrimSpace(*value))
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > limit {
		return nil, tooLong
	}
	return &trimmed, nil
}
