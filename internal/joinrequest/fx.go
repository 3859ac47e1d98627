package joinrequest

import (
	"github.com/smallbiznis/marketplace/internal/joinrequest/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("joinrequest.repository",
	fx.Provide(repository.Provide),
)
