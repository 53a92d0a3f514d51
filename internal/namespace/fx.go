package namespace

import (
	"github.com/smallbiznis/quotara/internal/namespace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("namespace.service",
	fx.Provide(service.NewService),
)
