package events

import (
	"github.com/smallbiznis/marketplace/internal/events/broker"
	"github.com/smallbiznis/marketplace/internal/events/outbox"
	"github.com/smallbiznis/marketplace/internal/events/relay"
	"github.com/smallbiznis/marketplace/internal/events/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(repository.Provide),
	fx.Provide(outbox.NewOutbox),
	fx.Provide(broker.New),
	fx.Provide(relay.New),
)
