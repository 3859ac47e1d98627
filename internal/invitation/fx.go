package invitation

import (
	"github.com/smallbiznis/marketplace/internal/invitation/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invitation.repository",
	fx.Provide(repository.Provide),
)
