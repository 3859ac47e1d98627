package hierarchy

import (
	"github.com/smallbiznis/marketplace/internal/hierarchy/query"
	"github.com/smallbiznis/marketplace/internal/hierarchy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("hierarchy.service",
	fx.Provide(service.New),
	fx.Provide(query.New),
)
