package undo

import (
	"github.com/smallbiznis/guesthouse/internal/undo/service"
	"go.uber.org/fx"
)

var Module = fx.Module("undo.service",
	fx.Provide(service.New),
)
