package room

import (
	"github.com/smallbiznis/guesthouse/internal/room/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("room.repository",
	fx.Provide(repository.Provide),
)
