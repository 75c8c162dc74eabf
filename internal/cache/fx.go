package cache

import (
	"github.com/smallbiznis/guesthouse/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(func(cfg config.Config) PreviewCache {
		return NewPreviewCache(cfg.PreviewCacheTTL)
	}),
)
