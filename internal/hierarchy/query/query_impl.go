package query

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	"github.com/smallbiznis/marketplace/pkg/db/option"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"github.com/smallbiznis/marketplace/pkg/phone"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// phoneLookupLimit bounds how many pending invitations one phone number can
// see at once.
const phoneLookupLimit = pagination.MaxPageSize

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	ProviderRepo    providerdomain.Repository
	InvitationRepo  invitationdomain.Repository
	JoinRequestRepo joinrequestdomain.Repository
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	providerRepo    providerdomain.Repository
	invitationRepo  invitationdomain.Repository
	joinRequestRepo joinrequestdomain.Repository
}

func New(p Params) domain.QueryService {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("hierarchy.query"),
		clock:           p.Clock,
		providerRepo:    p.ProviderRepo,
		invitationRepo:  p.InvitationRepo,
		joinRequestRepo: p.JoinRequestRepo,
	}
}

func (s *Service) PendingInvitationsForOrganization(ctx context.Context, organizationID uuid.UUID, page pagination.Pagination) (*domain.InvitationPage, error) {
	if _, err := s.organization(ctx, organizationID); err != nil {
		return nil, err
	}

	page = page.Normalize()
	rows, err := s.invitationRepo.List(ctx, s.db, invitationdomain.ListFilter{
		OrganizationID: &organizationID,
		Status:         invitationdomain.StatusPending,
	}, page)
	if err != nil {
		return nil, pageErr(err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.PageSize, func(inv *invitationdomain.Invitation) string {
		return pagination.CursorFor(inv.ID.String(), inv.CreatedAt)
	})
	now := s.clock.Now()
	views := make([]domain.InvitationView, 0, len(rows))
	for _, inv := range rows {
		views = append(views, view(inv, now))
	}
	return &domain.InvitationPage{PageInfo: info, Invitations: views}, nil
}

// PendingInvitationsForPhone lists the invitations the holder of phoneNumber
// could accept right now. Lapsed invitations not yet swept are filtered in
// the query so they never take a slot.
func (s *Service) PendingInvitationsForPhone(ctx context.Context, phoneNumber string) ([]domain.InvitationView, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, invitationdomain.ErrInvalidPhoneNumber
	}

	now := s.clock.Now()
	rows, err := s.invitationRepo.List(ctx, s.db, invitationdomain.ListFilter{
		PhoneNumber: normalized,
		Status:      invitationdomain.StatusPending,
		ValidAt:     &now,
	}, pagination.Pagination{PageSize: phoneLookupLimit})
	if err != nil {
		return nil, err
	}
	if len(rows) > phoneLookupLimit {
		rows = rows[:phoneLookupLimit]
	}

	views := make([]domain.InvitationView, 0, len(rows))
	for _, inv := range rows {
		views = append(views, view(inv, now))
	}
	return views, nil
}

func (s *Service) StaffRoster(ctx context.Context, organizationID uuid.UUID, page pagination.Pagination) (*domain.StaffPage, error) {
	if _, err := s.organization(ctx, organizationID); err != nil {
		return nil, err
	}

	page = page.Normalize()
	rows, err := s.providerRepo.ListStaff(ctx, s.db, organizationID, page)
	if err != nil {
		return nil, pageErr(err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.PageSize, func(p *providerdomain.Provider) string {
		return pagination.CursorFor(p.ID.String(), p.CreatedAt)
	})
	staff := make([]providerdomain.Response, 0, len(rows))
	for _, p := range rows {
		staff = append(staff, *providerdomain.ToResponse(p))
	}
	return &domain.StaffPage{PageInfo: info, Staff: staff}, nil
}

func (s *Service) SentJoinRequests(ctx context.Context, requesterID uuid.UUID, status joinrequestdomain.Status, page pagination.Pagination) (*domain.JoinRequestPage, error) {
	if requesterID == uuid.Nil {
		return nil, domain.ErrInvalidID
	}
	return s.joinRequests(ctx, joinrequestdomain.ListFilter{RequesterID: &requesterID, Status: status}, page)
}

func (s *Service) JoinRequestsForOrganization(ctx context.Context, organizationID uuid.UUID, status joinrequestdomain.Status, page pagination.Pagination) (*domain.JoinRequestPage, error) {
	if _, err := s.organization(ctx, organizationID); err != nil {
		return nil, err
	}
	return s.joinRequests(ctx, joinrequestdomain.ListFilter{OrganizationID: &organizationID, Status: status}, page)
}

func (s *Service) GetInvitation(ctx context.Context, id uuid.UUID) (*domain.InvitationView, error) {
	if id == uuid.Nil {
		return nil, invitationdomain.ErrInvalidInvitationID
	}
	inv, err := s.invitationRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invitationdomain.ErrInvitationNotFound
	}
	v := view(inv, s.clock.Now())
	return &v, nil
}

func (s *Service) GetJoinRequest(ctx context.Context, id uuid.UUID) (*joinrequestdomain.JoinRequest, error) {
	if id == uuid.Nil {
		return nil, joinrequestdomain.ErrInvalidJoinRequestID
	}
	req, err := s.joinRequestRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, joinrequestdomain.ErrJoinRequestNotFound
	}
	return req, nil
}

func (s *Service) joinRequests(ctx context.Context, filter joinrequestdomain.ListFilter, page pagination.Pagination) (*domain.JoinRequestPage, error) {
	page = page.Normalize()
	rows, err := s.joinRequestRepo.List(ctx, s.db, filter, page)
	if err != nil {
		return nil, pageErr(err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.PageSize, func(req *joinrequestdomain.JoinRequest) string {
		return pagination.CursorFor(req.ID.String(), req.CreatedAt)
	})
	out := make([]joinrequestdomain.JoinRequest, 0, len(rows))
	for _, req := range rows {
		out = append(out, *req)
	}
	return &domain.JoinRequestPage{PageInfo: info, JoinRequests: out}, nil
}

func (s *Service) organization(ctx context.Context, id uuid.UUID) (*providerdomain.Provider, error) {
	if id == uuid.Nil {
		return nil, providerdomain.ErrInvalidProviderID
	}
	org, err := s.providerRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, providerdomain.ErrOrganizationNotFound
	}
	if !org.IsOrganization() {
		return nil, providerdomain.ErrNotOrganization
	}
	return org, nil
}

func view(inv *invitationdomain.Invitation, now time.Time) domain.InvitationView {
	return domain.InvitationView{Invitation: *inv, Valid: inv.IsValid(now)}
}

func pageErr(err error) error {
	if errors.Is(err, option.ErrInvalidPageToken) {
		return domain.ErrInvalidPageToken
	}
	return err
}
