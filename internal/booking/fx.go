package booking

import (
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	"github.com/smallbiznis/guesthouse/internal/booking/repository"
	"github.com/smallbiznis/guesthouse/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc *service.Service) domain.Service { return svc }),
	fx.Provide(
		fx.Annotate(service.NewBookingReverter, fx.ResultTags(`group:"reverters"`)),
		fx.Annotate(service.NewLineItemReverter, fx.ResultTags(`group:"reverters"`)),
	),
)
