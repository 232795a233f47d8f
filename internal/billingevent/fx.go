package billingevent

import (
	"github.com/smallbiznis/portbilling/internal/billingevent/publisher"
	"github.com/smallbiznis/portbilling/internal/billingevent/repository"
	"github.com/smallbiznis/portbilling/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent.service",
	fx.Provide(repository.Provide),
	fx.Provide(publisher.New),
	fx.Provide(service.NewService),
	fx.Provide(service.NewOutbox),
	fx.Provide(service.NewRelay),
)
