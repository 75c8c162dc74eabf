package guest

import (
	"github.com/smallbiznis/guesthouse/internal/guest/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("guest.repository",
	fx.Provide(repository.Provide),
)
