package txlog

import (
	"github.com/smallbiznis/guesthouse/internal/txlog/repository"
	"github.com/smallbiznis/guesthouse/internal/txlog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("txlog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
