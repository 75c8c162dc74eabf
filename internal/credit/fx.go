package credit

import (
	"github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/credit/repository"
	"github.com/smallbiznis/guesthouse/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(service.New, fx.As(new(domain.Ledger)))),
	fx.Provide(fx.Annotate(service.NewReverter, fx.ResultTags(`group:"reverters"`))),
)
