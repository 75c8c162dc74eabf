package editlock

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/guesthouse/internal/config"
	"go.uber.org/fx"
)

type params struct {
	fx.In

	Redis  *redis.Client `optional:"true"`
	Config config.Config
}

var Module = fx.Module("editlock",
	fx.Provide(func(p params) *Locker {
		return NewLocker(p.Redis, p.Config.EditLockTTL)
	}),
)
