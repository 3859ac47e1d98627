package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Action string

const (
	ActionLinked                  Action = "LINKED"
	ActionUnlinked                Action = "UNLINKED"
	ActionConvertedToOrganization Action = "CONVERTED_TO_ORGANIZATION"
)

// AuditLog records a change to a provider's place in the hierarchy.
type AuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProviderID     string            `gorm:"type:varchar(36);not null;index" json:"provider_id"`
	OrganizationID *string           `gorm:"type:varchar(36);index" json:"organization_id,omitempty"`
	ActorID        *string           `gorm:"type:varchar(36)" json:"actor_id,omitempty"`
	Action         Action            `gorm:"type:varchar(32);not null" json:"action"`
	Reason         *string           `gorm:"type:varchar(500)" json:"reason,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "provider_hierarchy_audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	ProviderID string
	Action     Action
	Cursor     *AuditCursor
	Limit      int
}
