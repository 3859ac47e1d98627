// Package domain contains the Provider aggregate and its hierarchy transitions.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/pkg/phone"
	"golang.org/x/text/unicode/norm"
)

const AggregateType = "provider"

type HierarchyType string

const (
	HierarchyIndividual   HierarchyType = "INDIVIDUAL"
	HierarchyOrganization HierarchyType = "ORGANIZATION"
)

func (t HierarchyType) Valid() bool {
	return t == HierarchyIndividual || t == HierarchyOrganization
}

// Status is the provider lifecycle. Providers are never deleted.
type Status string

const (
	StatusDrafted     Status = "DRAFTED"
	StatusActive      Status = "ACTIVE"
	StatusSuspended   Status = "SUSPENDED"
	StatusDeactivated Status = "DEACTIVATED"
)

const maxDisplayNameLength = 120

// Provider is the aggregate root holding hierarchy state. ParentProviderID is
// set only on an Individual that is currently staff of that organization.
type Provider struct {
	ID               uuid.UUID     `gorm:"type:varchar(36);primaryKey" json:"id"`
	DisplayName      string        `gorm:"type:varchar(120);not null" json:"display_name"`
	Slug             string        `gorm:"type:varchar(160);not null;index" json:"slug"`
	PhoneNumber      string        `gorm:"type:varchar(20);not null;index" json:"phone_number"`
	HierarchyType    HierarchyType `gorm:"type:varchar(16);not null" json:"hierarchy_type"`
	ParentProviderID *uuid.UUID    `gorm:"type:varchar(36);index" json:"parent_provider_id,omitempty"`
	Status           Status        `gorm:"type:varchar(16);not null" json:"status"`
	Version          int64         `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`

	events eventdomain.Recorder
}

// TableName sets the database table name.
func (Provider) TableName() string { return "providers" }

// NewProvider registers an active provider.
func NewProvider(id uuid.UUID, displayName, phoneNumber string, hierarchyType HierarchyType, now time.Time) (*Provider, error) {
	name := norm.NFC.String(strings.TrimSpace(displayName))
	if name == "" || len([]rune(name)) > maxDisplayNameLength {
		return nil, ErrInvalidDisplayName
	}
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, ErrInvalidPhoneNumber
	}
	if !hierarchyType.Valid() {
		return nil, ErrInvalidHierarchyType
	}

	now = now.UTC()
	return &Provider{
		ID:            id,
		DisplayName:   name,
		Slug:          slug.Make(name),
		PhoneNumber:   normalized,
		HierarchyType: hierarchyType,
		Status:        StatusActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (p *Provider) IsOrganization() bool { return p.HierarchyType == HierarchyOrganization }

func (p *Provider) IsIndividual() bool { return p.HierarchyType == HierarchyIndividual }

// IsLinked reports whether the provider is staff of some organization.
func (p *Provider) IsLinked() bool { return p.ParentProviderID != nil }

// IsStaffOf reports whether the provider is linked to organizationID.
func (p *Provider) IsStaffOf(organizationID uuid.UUID) bool {
	return p.ParentProviderID != nil && *p.ParentProviderID == organizationID
}

// EnsureParticipating fails for suspended or deactivated providers.
func (p *Provider) EnsureParticipating() error {
	switch p.Status {
	case StatusSuspended, StatusDeactivated:
		return ErrProviderInactive
	default:
		return nil
	}
}

// ConvertToOrganization turns an independent Individual into an Organization.
func (p *Provider) ConvertToOrganization(now time.Time) error {
	if p.IsOrganization() {
		return ErrAlreadyOrganization
	}
	if p.IsLinked() {
		return ErrProviderHasParent
	}
	p.HierarchyType = HierarchyOrganization
	p.UpdatedAt = now.UTC()
	p.events.Record(eventdomain.Event{
		Topic:         eventdomain.TopicConvertedToOrganization,
		AggregateType: AggregateType,
		AggregateID:   p.ID.String(),
		OccurredAt:    p.UpdatedAt,
		Payload: map[string]any{
			"provider_id":    p.ID.String(),
			"hierarchy_type": string(p.HierarchyType),
		},
	})
	return nil
}

// LinkToOrganization sets the parent reference. Callers must have checked
// that the provider is an unlinked Individual.
func (p *Provider) LinkToOrganization(organizationID uuid.UUID, now time.Time) {
	orgID := organizationID
	p.ParentProviderID = &orgID
	p.UpdatedAt = now.UTC()
}

// UnlinkFromOrganization clears the parent reference. The reason travels
// with the raised event and the audit trail.
func (p *Provider) UnlinkFromOrganization(reason string, now time.Time) {
	var previous string
	if p.ParentProviderID != nil {
		previous = p.ParentProviderID.String()
	}
	p.ParentProviderID = nil
	p.UpdatedAt = now.UTC()
	p.events.Record(eventdomain.Event{
		Topic:         eventdomain.TopicStaffRemoved,
		AggregateType: AggregateType,
		AggregateID:   p.ID.String(),
		OccurredAt:    p.UpdatedAt,
		Payload: map[string]any{
			"provider_id":     p.ID.String(),
			"organization_id": previous,
			"reason":          reason,
		},
	})
}

// PullEvents returns and clears the events raised since the last pull.
func (p *Provider) PullEvents() []eventdomain.Event {
	return p.events.Pull()
}
