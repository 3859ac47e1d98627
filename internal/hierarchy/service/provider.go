package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/marketplace/internal/audit/domain"
	"github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// ConvertToOrganization promotes an independent Individual. Linked providers
// must be removed from their organization first.
func (s *Service) ConvertToOrganization(ctx context.Context, cmd domain.ConvertToOrganizationCommand) (*domain.ConvertToOrganizationResult, error) {
	if err := requireID(cmd.ProviderID); err != nil {
		return nil, err
	}

	var result domain.ConvertToOrganizationResult
	err := s.execute(ctx, "convert_to_organization", []attribute.KeyValue{
		attribute.String("provider_id", cmd.ProviderID.String()),
	}, func(ctx context.Context, u *unit) error {
		provider, err := s.loadProvider(ctx, u, cmd.ProviderID, providerdomain.ErrProviderNotFound)
		if err != nil {
			return err
		}
		if err := provider.EnsureParticipating(); err != nil {
			return err
		}
		if err := provider.ConvertToOrganization(u.now); err != nil {
			return err
		}
		if err := s.providerRepo.Update(ctx, u.tx, provider); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, u.tx, auditdomain.Entry{
			ProviderID: provider.ID.String(),
			Action:     auditdomain.ActionConvertedToOrganization,
			Metadata: map[string]any{
				"from": string(providerdomain.HierarchyIndividual),
				"to":   string(providerdomain.HierarchyOrganization),
			},
		}); err != nil {
			return err
		}
		if err := s.publish(ctx, u, provider.PullEvents()...); err != nil {
			return err
		}
		u.transition(providerdomain.AggregateType, string(provider.HierarchyType))

		result = domain.ConvertToOrganizationResult{
			ProviderID:    provider.ID,
			HierarchyType: provider.HierarchyType,
			ConvertedAt:   provider.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("provider converted to organization", zap.String("provider_id", result.ProviderID.String()))
	return &result, nil
}

// RemoveStaffMember detaches a staff member. The reason is mandatory and is
// kept on the audit trail.
func (s *Service) RemoveStaffMember(ctx context.Context, cmd domain.RemoveStaffMemberCommand) (*domain.RemoveStaffMemberResult, error) {
	if err := requireID(cmd.OrganizationID, cmd.StaffProviderID); err != nil {
		return nil, err
	}
	reason := norm.NFC.String(strings.TrimSpace(cmd.Reason))
	if reason == "" {
		return nil, domain.ErrReasonRequired
	}
	if len([]rune(reason)) > domain.MaxReasonLength {
		return nil, domain.ErrReasonTooLong
	}

	var result domain.RemoveStaffMemberResult
	err := s.execute(ctx, "remove_staff_member", []attribute.KeyValue{
		attribute.String("organization_id", cmd.OrganizationID.String()),
		attribute.String("provider_id", cmd.StaffProviderID.String()),
	}, func(ctx context.Context, u *unit) error {
		org, err := s.loadProvider(ctx, u, cmd.OrganizationID, providerdomain.ErrOrganizationNotFound)
		if err != nil {
			return err
		}
		if !org.IsOrganization() {
			return providerdomain.ErrNotOrganization
		}
		staff, err := s.loadProvider(ctx, u, cmd.StaffProviderID, providerdomain.ErrProviderNotFound)
		if err != nil {
			return err
		}
		if !staff.IsStaffOf(cmd.OrganizationID) {
			return providerdomain.ErrNotStaff
		}

		staff.UnlinkFromOrganization(reason, u.now)
		if err := s.providerRepo.Update(ctx, u.tx, staff); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, u.tx, auditdomain.Entry{
			ProviderID:     staff.ID.String(),
			OrganizationID: cmd.OrganizationID.String(),
			Action:         auditdomain.ActionUnlinked,
			Reason:         reason,
		}); err != nil {
			return err
		}
		if err := s.publish(ctx, u, staff.PullEvents()...); err != nil {
			return err
		}
		u.transition(providerdomain.AggregateType, "UNLINKED")

		result = domain.RemoveStaffMemberResult{
			OrganizationID:  cmd.OrganizationID,
			StaffProviderID: staff.ID,
			RemovedAt:       staff.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("staff member removed",
		zap.String("organization_id", result.OrganizationID.String()),
		zap.String("provider_id", result.StaffProviderID.String()),
	)
	return &result, nil
}
