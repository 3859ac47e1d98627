package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func (s *Service) CreateJoinRequest(ctx context.Context, cmd domain.CreateJoinRequestCommand) (*domain.CreateJoinRequestResult, error) {
	if err := requireID(cmd.OrganizationID, cmd.RequesterID); err != nil {
		return nil, err
	}
	if cmd.OrganizationID == cmd.RequesterID {
		return nil, providerdomain.ErrSelfReference
	}

	var result domain.CreateJoinRequestResult
	err := s.execute(ctx, "create_join_request", []attribute.KeyValue{
		attribute.String("organization_id", cmd.OrganizationID.String()),
		attribute.String("provider_id", cmd.RequesterID.String()),
	}, func(ctx context.Context, u *unit) error {
		if _, err := s.loadOrganization(ctx, u, cmd.OrganizationID); err != nil {
			return err
		}
		requester, err := s.loadLinkableIndividual(ctx, u, cmd.RequesterID)
		if err != nil {
			return err
		}

		req, err := joinrequestdomain.Create(uuid.New(), cmd.OrganizationID, requester.ID, cmd.Message, u.now)
		if err != nil {
			return err
		}
		existing, err := s.joinRequestRepo.FindPending(ctx, u.tx, cmd.OrganizationID, requester.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return joinrequestdomain.ErrDuplicatePendingJoinRequest
		}
		if err := s.joinRequestRepo.Insert(ctx, u.tx, req); err != nil {
			return err
		}
		u.transition(joinrequestdomain.AggregateType, string(req.Status))

		result = domain.CreateJoinRequestResult{
			RequestID:      req.ID,
			OrganizationID: req.OrganizationID,
			RequesterID:    req.RequesterID,
			Status:         req.Status,
			CreatedAt:      req.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ApproveJoinRequest links the requester to the reviewing organization.
func (s *Service) ApproveJoinRequest(ctx context.Context, cmd domain.ApproveJoinRequestCommand) (*domain.ApproveJoinRequestResult, error) {
	if err := requireID(cmd.RequestID, cmd.OrganizationID, cmd.ReviewerID); err != nil {
		return nil, err
	}

	var result domain.ApproveJoinRequestResult
	err := s.execute(ctx, "approve_join_request", []attribute.KeyValue{
		attribute.String("join_request_id", cmd.RequestID.String()),
		attribute.String("organization_id", cmd.OrganizationID.String()),
	}, func(ctx context.Context, u *unit) error {
		req, err := s.loadJoinRequest(ctx, u, cmd.RequestID)
		if err != nil {
			return err
		}
		if req.OrganizationID != cmd.OrganizationID {
			return joinrequestdomain.ErrNotReviewingOrganization
		}
		if _, err := s.loadOrganization(ctx, u, req.OrganizationID); err != nil {
			return err
		}
		if err := req.Approve(cmd.ReviewerID, cmd.Note, u.now); err != nil {
			return err
		}
		requester, err := s.loadLinkableIndividual(ctx, u, req.RequesterID)
		if err != nil {
			return err
		}

		if err := s.joinRequestRepo.Update(ctx, u.tx, req); err != nil {
			return err
		}
		if err := s.link(ctx, u, requester, req.OrganizationID, "join_request", req.ID); err != nil {
			return err
		}
		if err := s.publish(ctx, u, req.PullEvents()...); err != nil {
			return err
		}
		u.transition(joinrequestdomain.AggregateType, string(req.Status))

		result = domain.ApproveJoinRequestResult{
			RequestID:      req.ID,
			OrganizationID: req.OrganizationID,
			RequesterID:    requester.ID,
			ApprovedAt:     *req.ReviewedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("join request approved",
		zap.String("join_request_id", result.RequestID.String()),
		zap.String("organization_id", result.OrganizationID.String()),
		zap.String("provider_id", result.RequesterID.String()),
	)
	return &result, nil
}

func (s *Service) RejectJoinRequest(ctx context.Context, cmd domain.RejectJoinRequestCommand) (*domain.RejectJoinRequestResult, error) {
	if err := requireID(cmd.RequestID, cmd.OrganizationID, cmd.ReviewerID); err != nil {
		return nil, err
	}

	var result domain.RejectJoinRequestResult
	err := s.execute(ctx, "reject_join_request", []attribute.KeyValue{
		attribute.String("join_request_id", cmd.RequestID.String()),
		attribute.String("organization_id", cmd.OrganizationID.String()),
	}, func(ctx context.Context, u *unit) error {
		req, err := s.loadJoinRequest(ctx, u, cmd.RequestID)
		if err != nil {
			return err
		}
		if req.OrganizationID != cmd.OrganizationID {
			return joinrequestdomain.ErrNotReviewingOrganization
		}
		if err := req.Reject(cmd.ReviewerID, cmd.Reason, u.now); err != nil {
			return err
		}
		if err := s.joinRequestRepo.Update(ctx, u.tx, req); err != nil {
			return err
		}
		u.transition(joinrequestdomain.AggregateType, string(req.Status))

		result = domain.RejectJoinRequestResult{
			RequestID:  req.ID,
			Status:     req.Status,
			RejectedAt: *req.ReviewedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelJoinRequest withdraws a pending request on behalf of its requester.
func (s *Service) CancelJoinRequest(ctx context.Context, cmd domain.CancelJoinRequestCommand) (*domain.CancelJoinRequestResult, error) {
	if err := requireID(cmd.RequestID, cmd.RequesterID); err != nil {
		return nil, err
	}

	var result domain.CancelJoinRequestResult
	err := s.execute(ctx, "cancel_join_request", []attribute.KeyValue{
		attribute.String("join_request_id", cmd.RequestID.String()),
	}, func(ctx context.Context, u *unit) error {
		req, err := s.loadJoinRequest(ctx, u, cmd.RequestID)
		if err != nil {
			return err
		}
		if req.RequesterID != cmd.RequesterID {
			return joinrequestdomain.ErrNotRequester
		}
		if err := req.Withdraw(u.now); err != nil {
			return err
		}
		if err := s.joinRequestRepo.Update(ctx, u.tx, req); err != nil {
			return err
		}
		u.transition(joinrequestdomain.AggregateType, string(req.Status))

		result = domain.CancelJoinRequestResult{RequestID: req.ID, Status: req.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
