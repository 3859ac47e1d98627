package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Outbox writes recorded events inside the caller's transaction.
type Outbox interface {
	Append(ctx context.Context, tx *gorm.DB, events ...Event) error
}

// Broker delivers relayed messages. Delivery is fire-and-forget.
type Broker interface {
	Publish(ctx context.Context, msg Message) error
}

// Repository reads and updates outbox rows for the relay.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rows []OutboxEvent) error
	ListUnpublished(ctx context.Context, db *gorm.DB, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	CountUnpublished(ctx context.Context, db *gorm.DB) (int64, error)
}

// RelayResult summarizes one relay batch.
type RelayResult struct {
	Published int
	Failed    int
}

// Relay moves committed outbox rows to the broker.
type Relay interface {
	RelayBatch(ctx context.Context, limit int) (RelayResult, error)
}
