package broker

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/marketplace/internal/events/domain"
	"go.uber.org/zap"
)

// New returns a Redis broker when a client is configured and a log broker otherwise.
func New(client *redis.Client, log *zap.Logger) domain.Broker {
	if client != nil {
		return NewRedisBroker(client)
	}
	return NewLogBroker(log)
}

type redisBroker struct {
	client *redis.Client
}

// NewRedisBroker publishes each message on the channel named by its topic.
func NewRedisBroker(client *redis.Client) domain.Broker {
	return &redisBroker{client: client}
}

func (b *redisBroker) Publish(ctx context.Context, msg domain.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return b.client.Publish(ctx, msg.Topic, body).Err()
}

type logBroker struct {
	log *zap.Logger
}

// NewLogBroker writes messages to the log. Used when no Redis is configured.
func NewLogBroker(log *zap.Logger) domain.Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &logBroker{log: log.Named("events.broker")}
}

func (b *logBroker) Publish(_ context.Context, msg domain.Message) error {
	b.log.Info("event published",
		zap.String("event_id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.String("aggregate_type", msg.AggregateType),
		zap.String("aggregate_id", msg.AggregateID),
	)
	return nil
}
