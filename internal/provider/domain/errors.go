package domain

import "github.com/smallbiznis/marketplace/pkg/domainerr"

var (
	ErrProviderNotFound     = domainerr.NotFound("provider_not_found", "provider not found")
	ErrOrganizationNotFound = domainerr.NotFound("organization_not_found", "organization not found")

	ErrInvalidProviderID    = domainerr.Validation("invalid_provider_id", "provider id is invalid")
	ErrInvalidDisplayName   = domainerr.Validation("invalid_display_name", "display name is required and must be at most 120 characters")
	ErrInvalidPhoneNumber   = domainerr.Validation("invalid_phone_number", "phone number must be in E.164 format")
	ErrInvalidHierarchyType = domainerr.Validation("invalid_hierarchy_type", "hierarchy type must be INDIVIDUAL or ORGANIZATION")

	ErrProviderInactive    = domainerr.Validation("provider_inactive", "provider is suspended or deactivated")
	ErrAlreadyOrganization = domainerr.Validation("already_organization", "provider is already an organization")
	ErrProviderHasParent   = domainerr.Validation("has_parent", "provider is linked to an organization, detach first")
	ErrNotOrganization     = domainerr.Validation("not_an_organization", "provider is not an organization")
	ErrNotIndividual       = domainerr.Validation("not_individual", "provider is not an individual")
	ErrAlreadyLinked       = domainerr.Validation("already_linked", "provider is already linked to an organization")
	ErrNotStaff            = domainerr.Validation("not_staff", "provider is not staff of this organization")
	ErrSelfReference       = domainerr.Validation("self_reference", "an organization cannot join itself")
)
