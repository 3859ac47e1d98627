package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketplace/internal/events/domain"
	"github.com/smallbiznis/marketplace/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	GenID *snowflake.Node
	Repo  domain.Repository
}

type outboxWriter struct {
	genID *snowflake.Node
	repo  domain.Repository
}

func NewOutbox(p Params) domain.Outbox {
	return &outboxWriter{
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Append persists events with tx so they commit or roll back with the aggregates
// that raised them.
func (o *outboxWriter) Append(ctx context.Context, tx *gorm.DB, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	metadata := datatypes.JSONMap{}
	for key, value := range correlation.Metadata(ctx) {
		metadata[key] = value
	}

	rows := make([]domain.OutboxEvent, 0, len(events))
	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", evt.Topic, err)
		}
		occurredAt := evt.OccurredAt.UTC()
		rows = append(rows, domain.OutboxEvent{
			ID:            o.genID.Generate(),
			Topic:         evt.Topic,
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID,
			Payload:       datatypes.JSON(payload),
			Metadata:      metadata,
			OccurredAt:    occurredAt,
			CreatedAt:     occurredAt,
		})
	}
	return o.repo.Insert(ctx, tx, rows)
}
