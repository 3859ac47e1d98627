package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"github.com/smallbiznis/marketplace/pkg/phone"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func (s *Service) SendInvitation(ctx context.Context, cmd domain.SendInvitationCommand) (*domain.SendInvitationResult, error) {
	if err := requireID(cmd.OrganizationID); err != nil {
		return nil, err
	}

	var result domain.SendInvitationResult
	err := s.execute(ctx, "send_invitation", []attribute.KeyValue{
		attribute.String("organization_id", cmd.OrganizationID.String()),
	}, func(ctx context.Context, u *unit) error {
		org, err := s.loadOrganization(ctx, u, cmd.OrganizationID)
		if err != nil {
			return err
		}

		inv, err := invitationdomain.Create(uuid.New(), org.ID, cmd.PhoneNumber, cmd.InviteeName, cmd.Message, s.expirationDays(), u.now)
		if err != nil {
			return err
		}

		// The partial unique index is the final arbiter; this read gives the
		// common case a clean error without relying on the insert failing.
		existing, err := s.invitationRepo.FindPending(ctx, u.tx, org.ID, inv.PhoneNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return invitationdomain.ErrDuplicatePendingInvitation
		}
		if err := s.invitationRepo.Insert(ctx, u.tx, inv); err != nil {
			return err
		}
		if err := s.publish(ctx, u, inv.PullEvents()...); err != nil {
			return err
		}
		u.transition(invitationdomain.AggregateType, string(inv.Status))

		result = domain.SendInvitationResult{
			InvitationID:   inv.ID,
			OrganizationID: inv.OrganizationID,
			PhoneNumber:    inv.PhoneNumber,
			Status:         inv.Status,
			ExpiresAt:      inv.ExpiresAt,
			CreatedAt:      inv.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invitation sent",
		zap.String("invitation_id", result.InvitationID.String()),
		zap.String("organization_id", result.OrganizationID.String()),
		zap.String("phone", phone.Mask(result.PhoneNumber)),
	)
	return &result, nil
}

// AcceptInvitation links the individual to the inviting organization. Only
// the invitee can touch the invitation: an invitation found past its deadline
// is then stored as Expired and the command fails with ErrInvitationExpired.
func (s *Service) AcceptInvitation(ctx context.Context, cmd domain.AcceptInvitationCommand) (*domain.AcceptInvitationResult, error) {
	if err := requireID(cmd.InvitationID, cmd.IndividualProviderID); err != nil {
		return nil, err
	}

	var result domain.AcceptInvitationResult
	err := s.execute(ctx, "accept_invitation", []attribute.KeyValue{
		attribute.String("invitation_id", cmd.InvitationID.String()),
		attribute.String("provider_id", cmd.IndividualProviderID.String()),
	}, func(ctx context.Context, u *unit) error {
		inv, err := s.loadInvitation(ctx, u, cmd.InvitationID)
		if err != nil {
			return err
		}
		individual, err := s.loadProvider(ctx, u, cmd.IndividualProviderID, providerdomain.ErrProviderNotFound)
		if err != nil {
			return err
		}
		if individual.PhoneNumber != inv.PhoneNumber {
			return invitationdomain.ErrNotInvitee
		}

		if err := inv.Accept(cmd.IndividualProviderID, u.now); err != nil {
			if errors.Is(err, invitationdomain.ErrInvitationExpired) {
				if updateErr := s.invitationRepo.Update(ctx, u.tx, inv); updateErr != nil {
					return updateErr
				}
				u.transition(invitationdomain.AggregateType, string(inv.Status))
				return &commitThenFail{err: err}
			}
			return err
		}

		if err := ensureLinkable(individual); err != nil {
			return err
		}
		if _, err := s.loadOrganization(ctx, u, inv.OrganizationID); err != nil {
			return err
		}

		if err := s.invitationRepo.Update(ctx, u.tx, inv); err != nil {
			return err
		}
		if err := s.link(ctx, u, individual, inv.OrganizationID, "invitation", inv.ID); err != nil {
			return err
		}
		if err := s.publish(ctx, u, inv.PullEvents()...); err != nil {
			return err
		}
		u.transition(invitationdomain.AggregateType, string(inv.Status))

		result = domain.AcceptInvitationResult{
			InvitationID:         inv.ID,
			OrganizationID:       inv.OrganizationID,
			IndividualProviderID: individual.ID,
			AcceptedAt:           *inv.RespondedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invitation accepted",
		zap.String("invitation_id", result.InvitationID.String()),
		zap.String("organization_id", result.OrganizationID.String()),
		zap.String("provider_id", result.IndividualProviderID.String()),
	)
	return &result, nil
}

// RejectInvitation declines on behalf of the invitee, identified by the
// phone number of IndividualProviderID.
func (s *Service) RejectInvitation(ctx context.Context, cmd domain.RejectInvitationCommand) (*domain.RejectInvitationResult, error) {
	if err := requireID(cmd.InvitationID, cmd.IndividualProviderID); err != nil {
		return nil, err
	}

	var result domain.RejectInvitationResult
	err := s.execute(ctx, "reject_invitation", []attribute.KeyValue{
		attribute.String("invitation_id", cmd.InvitationID.String()),
	}, func(ctx context.Context, u *unit) error {
		inv, err := s.loadInvitation(ctx, u, cmd.InvitationID)
		if err != nil {
			return err
		}
		invitee, err := s.loadProvider(ctx, u, cmd.IndividualProviderID, providerdomain.ErrProviderNotFound)
		if err != nil {
			return err
		}
		if invitee.PhoneNumber != inv.PhoneNumber {
			return invitationdomain.ErrNotInvitee
		}

		if inv.MarkAsExpired(u.now) {
			if err := s.invitationRepo.Update(ctx, u.tx, inv); err != nil {
				return err
			}
			u.transition(invitationdomain.AggregateType, string(inv.Status))
			return &commitThenFail{err: invitationdomain.ErrInvitationExpired}
		}
		if err := inv.Reject(u.now); err != nil {
			return err
		}
		if err := s.invitationRepo.Update(ctx, u.tx, inv); err != nil {
			return err
		}
		u.transition(invitationdomain.AggregateType, string(inv.Status))

		result = domain.RejectInvitationResult{
			InvitationID: inv.ID,
			Status:       inv.Status,
			RejectedAt:   *inv.RespondedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelInvitation withdraws an invitation. Ownership is checked before the
// state so a foreign organization always gets ErrNotInvitationOwner.
func (s *Service) CancelInvitation(ctx context.Context, cmd domain.CancelInvitationCommand) (*domain.CancelInvitationResult, error) {
	if err := requireID(cmd.InvitationID, cmd.OrganizationID); err != nil {
		return nil, err
	}

	var result domain.CancelInvitationResult
	err := s.execute(ctx, "cancel_invitation", []attribute.KeyValue{
		attribute.String("invitation_id", cmd.InvitationID.String()),
		attribute.String("organization_id", cmd.OrganizationID.String()),
	}, func(ctx context.Context, u *unit) error {
		inv, err := s.loadInvitation(ctx, u, cmd.InvitationID)
		if err != nil {
			return err
		}
		if inv.OrganizationID != cmd.OrganizationID {
			return invitationdomain.ErrNotInvitationOwner
		}
		if err := inv.Cancel(u.now); err != nil {
			return err
		}
		if err := s.invitationRepo.Update(ctx, u.tx, inv); err != nil {
			return err
		}
		u.transition(invitationdomain.AggregateType, string(inv.Status))

		result = domain.CancelInvitationResult{
			InvitationID: inv.ID,
			Cancelled:    true,
			CancelledAt:  *inv.RespondedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ExpireInvitations flips up to Limit lapsed Pending invitations to Expired.
// Rows changed concurrently are skipped and picked up by a later sweep.
func (s *Service) ExpireInvitations(ctx context.Context, cmd domain.ExpireInvitationsCommand) (*domain.ExpireInvitationsResult, error) {
	var result domain.ExpireInvitationsResult
	err := s.execute(ctx, "expire_invitations", nil, func(ctx context.Context, u *unit) error {
		candidates, err := s.invitationRepo.ListExpiredPending(ctx, u.tx, u.now, cmd.Limit)
		if err != nil {
			return err
		}
		for _, inv := range candidates {
			if !inv.MarkAsExpired(u.now) {
				result.Skipped++
				continue
			}
			if err := s.invitationRepo.Update(ctx, u.tx, inv); err != nil {
				if domainerr.IsConcurrencyConflict(err) {
					result.Skipped++
					continue
				}
				return err
			}
			u.transition(invitationdomain.AggregateType, string(inv.Status))
			result.Expired++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Expired > 0 {
		s.log.Info("invitations expired", zap.Int("expired", result.Expired), zap.Int("skipped", result.Skipped))
	}
	return &result, nil
}
