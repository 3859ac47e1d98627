// Package domain contains the ProviderJoinRequest aggregate.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	"golang.org/x/text/unicode/norm"
)

const AggregateType = "provider_join_request"

const maxTextLength = 500

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusWithdrawn Status = "WITHDRAWN"
)

func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// JoinRequest is an individual's request to become staff of an organization.
type JoinRequest struct {
	ID             uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	RequesterID    uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"requester_id"`
	Message        *string    `gorm:"type:varchar(500)" json:"message,omitempty"`
	Status         Status     `gorm:"type:varchar(16);not null;index" json:"status"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy     *uuid.UUID `gorm:"type:varchar(36)" json:"reviewed_by,omitempty"`
	ReviewNote     *string    `gorm:"type:varchar(500)" json:"review_note,omitempty"`
	Version        int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`

	events eventdomain.Recorder
}

// TableName sets the database table name.
func (JoinRequest) TableName() string { return "provider_join_requests" }

// Create is the only constructor into Pending.
func Create(id, organizationID, requesterID uuid.UUID, message *string, now time.Time) (*JoinRequest, error) {
	msg, err := optionalText(message)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &JoinRequest{
		ID:             id,
		OrganizationID: organizationID,
		RequesterID:    requesterID,
		Message:        msg,
		Status:         StatusPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (j *JoinRequest) Approve(reviewerID uuid.UUID, note *string, now time.Time) error {
	if err := j.review(StatusApproved, reviewerID, note, now); err != nil {
		return err
	}
	j.events.Record(eventdomain.Event{
		Topic:         eventdomain.TopicJoinRequestApproved,
		AggregateType: AggregateType,
		AggregateID:   j.ID.String(),
		OccurredAt:    j.UpdatedAt,
		Payload: map[string]any{
			"join_request_id": j.ID.String(),
			"organization_id": j.OrganizationID.String(),
			"requester_id":    j.RequesterID.String(),
			"reviewed_by":     reviewerID.String(),
		},
	})
	return nil
}

func (j *JoinRequest) Reject(reviewerID uuid.UUID, note *string, now time.Time) error {
	return j.review(StatusRejected, reviewerID, note, now)
}

// Withdraw is called on behalf of the requester. Authorship is checked by the caller.
func (j *JoinRequest) Withdraw(now time.Time) error {
	if j.Status != StatusPending {
		return ErrJoinRequestNotPending
	}
	now = now.UTC()
	j.Status = StatusWithdrawn
	j.ReviewedAt = &now
	j.UpdatedAt = now
	return nil
}

func (j *JoinRequest) review(to Status, reviewerID uuid.UUID, note *string, now time.Time) error {
	if j.Status != StatusPending {
		return ErrJoinRequestNotPending
	}
	reviewNote, err := optionalText(note)
	if err != nil {
		return err
	}
	now = now.UTC()
	reviewer := reviewerID
	j.Status = to
	j.ReviewedAt = &now
	j.ReviewedBy = &reviewer
	j.ReviewNote = reviewNote
	j.UpdatedAt = now
	return nil
}

// PullEvents returns and clears the events raised since the last pull.
func (j *JoinRequest) PullEvents() []eventdomain.Event {
	return j.events.Pull()
}

func optionalText(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := norm.NFC.String(strings.TrimSpace(*value))
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > maxTextLength {
		return nil, ErrTextTooLong
	}
	return &trimmed, nil
}
