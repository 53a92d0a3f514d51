package seat

import (
	"github.com/smallbiznis/quotara/internal/seat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("seat",
	fx.Provide(
		service.NewService,
	),
)
