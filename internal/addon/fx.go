package addon

import (
	"github.com/smallbiznis/quotara/internal/addon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("addon.service",
	fx.Provide(service.NewService),
)
