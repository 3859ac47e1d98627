package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/internal/events/outbox"
	"github.com/smallbiznis/marketplace/internal/events/repository"
	"github.com/smallbiznis/marketplace/internal/migration"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingBroker struct {
	mu       sync.Mutex
	messages []domain.Message
	failOn   string
}

func (b *recordingBroker) Publish(_ context.Context, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.Topic == b.failOn {
		return errors.New("broker unavailable")
	}
	b.messages = append(b.messages, msg)
	return nil
}

type fixture struct {
	conn   *gorm.DB
	repo   domain.Repository
	outbox domain.Outbox
	broker *recordingBroker
	relay  domain.Relay
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide()
	broker := &recordingBroker{}
	return fixture{
		conn:   conn,
		repo:   repo,
		outbox: outbox.NewOutbox(outbox.Params{GenID: node, Repo: repo}),
		broker: broker,
		relay: New(Params{
			DB:     conn,
			Log:    zap.NewNop(),
			Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
			Repo:   repo,
			Broker: broker,
		}),
	}
}

func sampleEvent(topic string) domain.Event {
	return domain.Event{
		Topic:         topic,
		AggregateType: "provider_invitation",
		AggregateID:   "5b0f6c1e-0000-4000-8000-000000000001",
		OccurredAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Payload:       map[string]any{"invitation_id": "5b0f6c1e-0000-4000-8000-000000000001"},
	}
}

func TestOutboxAppendCarriesCorrelation(t *testing.T) {
	f := newFixture(t)
	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-1")

	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		return f.outbox.Append(ctx, tx, sampleEvent(domain.TopicInvitationSent))
	}))

	rows, err := f.repo.ListUnpublished(ctx, f.conn, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "corr-1", rows[0].Metadata["correlation_id"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Payload, &payload))
	assert.Equal(t, "5b0f6c1e-0000-4000-8000-000000000001", payload["invitation_id"])
}

func TestOutboxRollsBackWithTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.conn.Transaction(func(tx *gorm.DB) error {
		if err := f.outbox.Append(ctx, tx, sampleEvent(domain.TopicInvitationSent)); err != nil {
			return err
		}
		return errors.New("aggregate write failed")
	})
	require.Error(t, err)

	count, err := f.repo.CountUnpublished(ctx, f.conn)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRelayBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.outbox.Append(ctx, f.conn,
		sampleEvent(domain.TopicInvitationSent),
		sampleEvent(domain.TopicInvitationAccepted),
	))

	result, err := f.relay.RelayBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayResult{Published: 2}, result)
	require.Len(t, f.broker.messages, 2)
	assert.Equal(t, domain.TopicInvitationSent, f.broker.messages[0].Topic)

	result, err = f.relay.RelayBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayResult{}, result)
	assert.Len(t, f.broker.messages, 2)
}

func TestRelayBatchLeavesFailedRowsForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.broker.failOn = domain.TopicStaffRemoved

	require.NoError(t, f.outbox.Append(ctx, f.conn,
		sampleEvent(domain.TopicStaffRemoved),
		sampleEvent(domain.TopicConvertedToOrganization),
	))

	result, err := f.relay.RelayBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayResult{Published: 1, Failed: 1}, result)

	rows, err := f.repo.ListUnpublished(ctx, f.conn, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TopicStaffRemoved, rows[0].Topic)
	assert.Equal(t, 1, rows[0].Attempts)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "broker unavailable", *rows[0].LastError)

	f.broker.failOn = ""
	result, err = f.relay.RelayBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RelayResult{Published: 1}, result)
}
