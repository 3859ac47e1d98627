package domain

import (
	"context"
	"time"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
}

type RegisterRequest struct {
	DisplayName   string        `json:"display_name"`
	PhoneNumber   string        `json:"phone_number"`
	HierarchyType HierarchyType `json:"hierarchy_type"`
}

type Response struct {
	ID               string        `json:"id"`
	DisplayName      string        `json:"display_name"`
	Slug             string        `json:"slug"`
	PhoneNumber      string        `json:"phone_number"`
	HierarchyType    HierarchyType `json:"hierarchy_type"`
	ParentProviderID *string       `json:"parent_provider_id,omitempty"`
	Status           Status        `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ToResponse renders the provider for API callers.
func ToResponse(p *Provider) *Response {
	resp := &Response{
		ID:            p.ID.String(),
		DisplayName:   p.DisplayName,
		Slug:          p.Slug,
		PhoneNumber:   p.PhoneNumber,
		HierarchyType: p.HierarchyType,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.ParentProviderID != nil {
		parent := p.ParentProviderID.String()
		resp.ParentProviderID = &parent
	}
	return resp
}
