// Package domain holds the domain event envelope recorded by aggregates and
// the outbox rows those events are persisted as.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	TopicInvitationSent          = "provider.invitation.sent"
	TopicInvitationAccepted      = "provider.invitation.accepted"
	TopicJoinRequestApproved     = "provider.join_request.approved"
	TopicStaffRemoved            = "provider.staff.removed"
	TopicConvertedToOrganization = "provider.converted_to_organization"
)

// Event is raised by an aggregate transition and published after commit.
type Event struct {
	Topic         string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       map[string]any
}

// Recorder accumulates events raised by an aggregate until they are pulled
// by the unit of work that persists it.
type Recorder struct {
	pending []Event
}

func (r *Recorder) Record(evt Event) {
	r.pending = append(r.pending, evt)
}

// Pull returns the recorded events and clears the recorder.
func (r *Recorder) Pull() []Event {
	out := r.pending
	r.pending = nil
	return out
}

// OutboxEvent is a persisted event awaiting relay to the broker.
type OutboxEvent struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Topic         string            `gorm:"type:varchar(128);not null;index" json:"topic"`
	AggregateType string            `gorm:"type:varchar(64);not null" json:"aggregate_type"`
	AggregateID   string            `gorm:"type:varchar(36);not null;index" json:"aggregate_id"`
	Payload       datatypes.JSON    `gorm:"not null" json:"payload"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	OccurredAt    time.Time         `gorm:"not null" json:"occurred_at"`
	PublishedAt   *time.Time        `gorm:"index" json:"published_at,omitempty"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	LastError     *string           `json:"last_error,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }

// Message is the envelope handed to a broker.
type Message struct {
	ID            string            `json:"id"`
	Topic         string            `json:"topic"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Payload       datatypes.JSON    `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
