package tariff

import (
	"github.com/smallbiznis/portbilling/internal/tariff/repository"
	"github.com/smallbiznis/portbilling/internal/tariff/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tariff.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewManagement),
)
