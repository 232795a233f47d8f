package exchangerate

import (
	"github.com/smallbiznis/portbilling/internal/exchangerate/repository"
	"github.com/smallbiznis/portbilling/internal/exchangerate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("exchangerate.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewManagement),
)
