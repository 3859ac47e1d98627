package relay

import (
	"context"
	"time"

	"github.com/smallbiznis/marketplace/internal/clock"
	"github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Broker  domain.Broker
	Metrics *telemetry.Metrics `optional:"true"`
}

type Relay struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	broker  domain.Broker
	metrics *telemetry.Metrics
}

func New(p Params) domain.Relay {
	return &Relay{
		db:      p.DB,
		log:     p.Log.Named("events.relay"),
		clock:   p.Clock,
		repo:    p.Repo,
		broker:  p.Broker,
		metrics: p.Metrics,
	}
}

// RelayBatch publishes up to limit unpublished events. A broker failure marks
// the row as failed and leaves it for the next batch.
func (r *Relay) RelayBatch(ctx context.Context, limit int) (domain.RelayResult, error) {
	start := time.Now()
	var result domain.RelayResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := r.repo.ListUnpublished(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := r.broker.Publish(ctx, toMessage(row)); err != nil {
				r.log.Warn("publish outbox event failed",
					zap.String("event_id", row.ID.String()),
					zap.String("topic", row.Topic),
					zap.Error(err),
				)
				if markErr := r.repo.MarkFailed(ctx, tx, row.ID, err.Error()); markErr != nil {
					return markErr
				}
				result.Failed++
				continue
			}
			if err := r.repo.MarkPublished(ctx, tx, row.ID, r.clock.Now()); err != nil {
				return err
			}
			r.metrics.RecordOutboxPublished(row.Topic)
			result.Published++
		}
		return nil
	})
	if err != nil {
		r.metrics.RecordOutboxBatch("error", time.Since(start))
		return domain.RelayResult{}, err
	}

	status := "success"
	if result.Failed > 0 {
		status = "partial"
	}
	r.metrics.RecordOutboxBatch(status, time.Since(start))

	if backlog, err := r.repo.CountUnpublished(ctx, r.db); err == nil {
		r.metrics.SetOutboxBacklog(float64(backlog))
	}
	return result, nil
}

func toMessage(row domain.OutboxEvent) domain.Message {
	metadata := make(map[string]string, len(row.Metadata))
	for key, value := range row.Metadata {
		if s, ok := value.(string); ok {
			metadata[key] = s
		}
	}
	return domain.Message{
		ID:            row.ID.String(),
		Topic:         row.Topic,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		OccurredAt:    row.OccurredAt,
		Payload:       row.Payload,
		Metadata:      metadata,
	}
}
