package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newPending(t *testing.T) *Invitation {
	t.Helper()
	inv, err := Create(uuid.New(), uuid.New(), "+15550001", nil, nil, 0, now)
	require.NoError(t, err)
	inv.PullEvents()
	return inv
}

func TestCreate(t *testing.T) {
	name := "  Ana  "
	inv, err := Create(uuid.New(), uuid.New(), "+1-555-0001", &name, nil, 0, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, inv.Status)
	assert.Equal(t, "+15550001", inv.PhoneNumber)
	assert.Equal(t, now.AddDate(0, 0, DefaultExpirationDays), inv.ExpiresAt)
	require.NotNil(t, inv.InviteeName)
	assert.Equal(t, "Ana", *inv.InviteeName)
	assert.Nil(t, inv.Message)

	events := inv.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.TopicInvitationSent, events[0].Topic)

	t.Run("custom expiration", func(t *testing.T) {
		inv, err := Create(uuid.New(), uuid.New(), "+15550001", nil, nil, 3, now)
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 0, 3), inv.ExpiresAt)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := Create(uuid.New(), uuid.New(), "abc", nil, nil, 0, now)
		assert.ErrorIs(t, err, ErrInvalidPhoneNumber)

		long := strings.Repeat("x", 501)
		_, err = Create(uuid.New(), uuid.New(), "+15550001", nil, &long, 0, now)
		assert.ErrorIs(t, err, ErrMessageTooLong)

		longName := strings.Repeat("n", 121)
		_, err = Create(uuid.New(), uuid.New(), "+15550001", &longName, nil, 0, now)
		assert.ErrorIs(t, err, ErrInviteeNameTooLong)
	})
}

func TestAccept(t *testing.T) {
	inv := newPending(t)
	individual := uuid.New()

	require.NoError(t, inv.Accept(individual, now.Add(time.Hour)))
	assert.Equal(t, StatusAccepted, inv.Status)
	require.NotNil(t, inv.AcceptedByProviderID)
	assert.Equal(t, individual, *inv.AcceptedByProviderID)
	require.NotNil(t, inv.RespondedAt)
	assert.Equal(t, now.Add(time.Hour), *inv.RespondedAt)

	events := inv.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, eventdomain.TopicInvitationAccepted, events[0].Topic)

	assert.ErrorIs(t, inv.Accept(individual, now.Add(2*time.Hour)), ErrInvitationNotPending)
}

func TestAcceptAfterDeadlineExpires(t *testing.T) {
	inv := newPending(t)

	assert.True(t, inv.IsValid(inv.ExpiresAt))
	err := inv.Accept(uuid.New(), inv.ExpiresAt.Add(time.Nanosecond))
	assert.ErrorIs(t, err, ErrInvitationExpired)
	assert.Equal(t, StatusExpired, inv.Status)
	assert.Nil(t, inv.AcceptedByProviderID)
	assert.Empty(t, inv.PullEvents())

	assert.ErrorIs(t, inv.Accept(uuid.New(), now), ErrInvitationNotPending)
	assert.Equal(t, StatusExpired, inv.Status)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	terminate := map[Status]func(*Invitation) error{
		StatusAccepted:  func(i *Invitation) error { return i.Accept(uuid.New(), now) },
		StatusRejected:  func(i *Invitation) error { return i.Reject(now) },
		StatusCancelled: func(i *Invitation) error { return i.Cancel(now) },
		StatusExpired: func(i *Invitation) error {
			if !i.MarkAsExpired(i.ExpiresAt.Add(time.Second)) {
				return ErrInvitationNotPending
			}
			return nil
		},
	}

	for status, apply := range terminate {
		t.Run(string(status), func(t *testing.T) {
			inv := newPending(t)
			require.NoError(t, apply(inv))
			require.Equal(t, status, inv.Status)
			assert.True(t, inv.Status.IsTerminal())

			assert.ErrorIs(t, inv.Accept(uuid.New(), now), ErrInvitationNotPending)
			assert.ErrorIs(t, inv.Reject(now), ErrInvitationNotPending)
			assert.ErrorIs(t, inv.Cancel(now), ErrInvitationNotPending)
			assert.False(t, inv.MarkAsExpired(inv.ExpiresAt.Add(time.Hour)))
			assert.Equal(t, status, inv.Status)
		})
	}
}

func TestMarkAsExpired(t *testing.T) {
	inv := newPending(t)

	assert.False(t, inv.MarkAsExpired(now))
	assert.False(t, inv.MarkAsExpired(inv.ExpiresAt))
	assert.Equal(t, StatusPending, inv.Status)

	assert.True(t, inv.MarkAsExpired(inv.ExpiresAt.Add(time.Minute)))
	assert.False(t, inv.MarkAsExpired(inv.ExpiresAt.Add(time.Hour)))
	assert.Equal(t, StatusExpired, inv.Status)
	assert.Nil(t, inv.RespondedAt)
}
