package notification

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotara/internal/clock"
	"github.com/smallbiznis/quotara/internal/config"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
	"github.com/smallbiznis/quotara/internal/notification/service"
	"github.com/smallbiznis/quotara/internal/notification/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(
		provideDismissalStore,
		service.NewService,
	),
)

type storeParam struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

func provideDismissalStore(p storeParam) notificationdomain.DismissalStore {
	if p.Cfg.RedisAddr == "" {
		p.Log.Warn("no redis address configured, callout dismissals are process-local")
		return store.NewMemoryStore(p.Clock)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.RedisAddr,
		Password: p.Cfg.RedisPassword,
		DB:       p.Cfg.RedisDB,
	})
	return store.NewRedisStore(client)
}
