package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/marketplace/internal/invitation/domain"
	"github.com/smallbiznis/marketplace/internal/migration"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	return conn
}

func mustCreate(t *testing.T, orgID uuid.UUID, phone string, createdAt time.Time) *domain.Invitation {
	t.Helper()
	inv, err := domain.Create(uuid.New(), orgID, phone, nil, nil, 7, createdAt)
	require.NoError(t, err)
	return inv
}

func TestInsertRejectsSecondPendingInvitation(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := Provide()
	org := uuid.New()

	first := mustCreate(t, org, "+15550002", now)
	require.NoError(t, repo.Insert(ctx, conn, first))

	err := repo.Insert(ctx, conn, mustCreate(t, org, "+15550002", now))
	assert.ErrorIs(t, err, domain.ErrDuplicatePendingInvitation)

	require.NoError(t, repo.Insert(ctx, conn, mustCreate(t, uuid.New(), "+15550002", now)))

	require.NoError(t, first.Cancel(now))
	require.NoError(t, repo.Update(ctx, conn, first))
	require.NoError(t, repo.Insert(ctx, conn, mustCreate(t, org, "+15550002", now)))
}

func TestFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := Provide()
	org := uuid.New()

	inv := mustCreate(t, org, "+15550003", now)
	require.NoError(t, repo.Insert(ctx, conn, inv))

	pending, err := repo.FindPending(ctx, conn, org, "+15550003")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, inv.ID, pending.ID)

	none, err := repo.FindPending(ctx, conn, org, "+15550004")
	require.NoError(t, err)
	assert.Nil(t, none)

	stale, err := repo.FindByID(ctx, conn, inv.ID)
	require.NoError(t, err)

	accepter := uuid.New()
	require.NoError(t, pending.Accept(accepter, now.Add(time.Hour)))
	require.NoError(t, repo.Update(ctx, conn, pending))

	require.NoError(t, stale.Cancel(now.Add(time.Hour)))
	assert.True(t, domainerr.IsConcurrencyConflict(repo.Update(ctx, conn, stale)))

	stored, err := repo.FindByID(ctx, conn, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedByProviderID)
	assert.Equal(t, accepter, *stored.AcceptedByProviderID)
	assert.Equal(t, int64(2), stored.Version)

	missing, err := repo.FindByID(ctx, conn, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListExpiredPending(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := Provide()
	org := uuid.New()

	old := mustCreate(t, org, "+15550010", now.AddDate(0, 0, -10))
	older := mustCreate(t, org, "+15550011", now.AddDate(0, 0, -12))
	fresh := mustCreate(t, org, "+15550012", now)
	for _, inv := range []*domain.Invitation{old, older, fresh} {
		require.NoError(t, repo.Insert(ctx, conn, inv))
	}

	expired, err := repo.ListExpiredPending(ctx, conn, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, older.ID, expired[0].ID)
	assert.Equal(t, old.ID, expired[1].ID)

	limited, err := repo.ListExpiredPending(ctx, conn, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := Provide()
	org := uuid.New()

	for i, phone := range []string{"+15550020", "+15550021", "+15550022"} {
		require.NoError(t, repo.Insert(ctx, conn, mustCreate(t, org, phone, now.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Insert(ctx, conn, mustCreate(t, uuid.New(), "+15550021", now)))

	page, err := repo.List(ctx, conn, domain.ListFilter{OrganizationID: &org, Status: domain.StatusPending}, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "+15550022", page[0].PhoneNumber)

	byPhone, err := repo.List(ctx, conn, domain.ListFilter{PhoneNumber: "+15550021"}, pagination.Pagination{})
	require.NoError(t, err)
	assert.Len(t, byPhone, 2)
}

func TestListValidAtSkipsLapsedRows(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	repo := Provide()

	fresh := mustCreate(t, uuid.New(), "+15550030", now)
	lapsed, err := domain.Create(uuid.New(), uuid.New(), "+15550030", nil, nil, 1, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, conn, fresh))
	require.NoError(t, repo.Insert(ctx, conn, lapsed))

	later := now.Add(48 * time.Hour)
	filter := domain.ListFilter{PhoneNumber: "+15550030", Status: domain.StatusPending}

	all, err := repo.List(ctx, conn, filter, pagination.Pagination{PageSize: 1})
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, lapsed.ID, all[0].ID)

	filter.ValidAt = &later
	valid, err := repo.List(ctx, conn, filter, pagination.Pagination{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, fresh.ID, valid[0].ID)
}
