package tax

import (
	"github.com/smallbiznis/portbilling/internal/tax/repository"
	"github.com/smallbiznis/portbilling/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewManagement),
)
