package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/hierarchy/domain"
	invitationdomain "github.com/smallbiznis/marketplace/internal/invitation/domain"
	invitationrepository "github.com/smallbiznis/marketplace/internal/invitation/repository"
	joinrequestdomain "github.com/smallbiznis/marketplace/internal/joinrequest/domain"
	joinrequestrepository "github.com/smallbiznis/marketplace/internal/joinrequest/repository"
	"github.com/smallbiznis/marketplace/internal/migration"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
	providerrepository "github.com/smallbiznis/marketplace/internal/provider/repository"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueryService(t *testing.T) {
	ctx := context.Background()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	providers := providerrepository.Provide()
	invitations := invitationrepository.Provide()
	requests := joinrequestrepository.Provide()
	svc := New(Params{
		DB:              conn,
		Log:             zap.NewNop(),
		Clock:           fake,
		ProviderRepo:    providers,
		InvitationRepo:  invitations,
		JoinRequestRepo: requests,
	})

	org, err := providerdomain.NewProvider(uuid.New(), "Acme Care", "+15550009000", providerdomain.HierarchyOrganization, start)
	require.NoError(t, err)
	require.NoError(t, providers.Insert(ctx, conn, org))

	staff := make([]*providerdomain.Provider, 0, 3)
	for i, phoneNumber := range []string{"+15550001001", "+15550001002", "+15550001003"} {
		p, err := providerdomain.NewProvider(uuid.New(), "Helper", phoneNumber, providerdomain.HierarchyIndividual, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		p.LinkToOrganization(org.ID, start)
		require.NoError(t, providers.Insert(ctx, conn, p))
		staff = append(staff, p)
	}

	fresh, err := invitationdomain.Create(uuid.New(), org.ID, "+15550002001", nil, nil, 7, start)
	require.NoError(t, err)
	require.NoError(t, invitations.Insert(ctx, conn, fresh))
	stale, err := invitationdomain.Create(uuid.New(), org.ID, "+15550002002", nil, nil, 1, start)
	require.NoError(t, err)
	require.NoError(t, invitations.Insert(ctx, conn, stale))

	req, err := joinrequestdomain.Create(uuid.New(), org.ID, staff[0].ID, nil, start)
	require.NoError(t, err)
	require.NoError(t, requests.Insert(ctx, conn, req))

	fake.Advance(48 * time.Hour)

	t.Run("staff roster pages newest first", func(t *testing.T) {
		first, err := svc.StaffRoster(ctx, org.ID, pagination.Pagination{PageSize: 2})
		require.NoError(t, err)
		require.Len(t, first.Staff, 2)
		assert.True(t, first.HasMore)
		assert.Equal(t, staff[2].ID.String(), first.Staff[0].ID)

		second, err := svc.StaffRoster(ctx, org.ID, pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken})
		require.NoError(t, err)
		require.Len(t, second.Staff, 1)
		assert.False(t, second.HasMore)
		assert.Equal(t, staff[0].ID.String(), second.Staff[0].ID)
	})

	t.Run("bad page token", func(t *testing.T) {
		_, err := svc.StaffRoster(ctx, org.ID, pagination.Pagination{PageToken: "!!"})
		assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
	})

	t.Run("pending invitations carry validity", func(t *testing.T) {
		page, err := svc.PendingInvitationsForOrganization(ctx, org.ID, pagination.Pagination{})
		require.NoError(t, err)
		require.Len(t, page.Invitations, 2)
		valid := map[uuid.UUID]bool{}
		for _, v := range page.Invitations {
			valid[v.ID] = v.Valid
		}
		assert.True(t, valid[fresh.ID])
		assert.False(t, valid[stale.ID])
	})

	t.Run("phone lookup hides lapsed invitations", func(t *testing.T) {
		views, err := svc.PendingInvitationsForPhone(ctx, "+1 555 000 2001")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, fresh.ID, views[0].ID)

		views, err = svc.PendingInvitationsForPhone(ctx, "+15550002002")
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("join requests", func(t *testing.T) {
		sent, err := svc.SentJoinRequests(ctx, staff[0].ID, "", pagination.Pagination{})
		require.NoError(t, err)
		require.Len(t, sent.JoinRequests, 1)

		incoming, err := svc.JoinRequestsForOrganization(ctx, org.ID, joinrequestdomain.StatusApproved, pagination.Pagination{})
		require.NoError(t, err)
		assert.Empty(t, incoming.JoinRequests)

		got, err := svc.GetJoinRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, joinrequestdomain.StatusPending, got.Status)
	})

	t.Run("lookups by id", func(t *testing.T) {
		v, err := svc.GetInvitation(ctx, stale.ID)
		require.NoError(t, err)
		assert.False(t, v.Valid)

		_, err = svc.GetInvitation(ctx, uuid.New())
		assert.ErrorIs(t, err, invitationdomain.ErrInvitationNotFound)

		_, err = svc.StaffRoster(ctx, staff[0].ID, pagination.Pagination{})
		assert.ErrorIs(t, err, providerdomain.ErrNotOrganization)
	})
}

func TestPendingInvitationsForPhoneIgnoresLapsedBacklog(t *testing.T) {
	ctx := context.Background()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	invitations := invitationrepository.Provide()
	svc := New(Params{
		DB:              conn,
		Log:             zap.NewNop(),
		Clock:           fake,
		ProviderRepo:    providerrepository.Provide(),
		InvitationRepo:  invitations,
		JoinRequestRepo: joinrequestrepository.Provide(),
	})

	const phoneNumber = "+15550007000"
	fresh, err := invitationdomain.Create(uuid.New(), uuid.New(), phoneNumber, nil, nil, 7, start)
	require.NoError(t, err)
	require.NoError(t, invitations.Insert(ctx, conn, fresh))

	// Unswept lapsed invitations, all newer than the valid one.
	for i := 0; i <= phoneLookupLimit; i++ {
		lapsed, err := invitationdomain.Create(uuid.New(), uuid.New(), phoneNumber, nil, nil, 1, start.Add(time.Duration(i+1)*time.Second))
		require.NoError(t, err)
		require.NoError(t, invitations.Insert(ctx, conn, lapsed))
	}

	fake.Advance(48 * time.Hour)
	views, err := svc.PendingInvitationsForPhone(ctx, phoneNumber)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, fresh.ID, views[0].ID)
	assert.True(t, views[0].Valid)
}
