package events

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewHub),
	fx.Provide(providePublisher),
)

type publisherParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Hub       *Hub
	Redis     *redis.Client `optional:"true"`
	Log       *zap.Logger
}

func providePublisher(p publisherParams) Publisher {
	if p.Redis == nil {
		return p.Hub
	}
	bridge := NewRedisBridge(p.Redis, p.Hub, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStart: bridge.Start,
		OnStop:  bridge.Stop,
	})
	return bridge
}
