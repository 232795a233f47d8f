package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portbilling/internal/billingcycle"
	"github.com/smallbiznis/portbilling/internal/billingevent"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/config"
	"github.com/smallbiznis/portbilling/internal/exchangerate"
	"github.com/smallbiznis/portbilling/internal/invoice"
	"github.com/smallbiznis/portbilling/internal/keylock"
	"github.com/smallbiznis/portbilling/internal/observability"
	"github.com/smallbiznis/portbilling/internal/rating"
	"github.com/smallbiznis/portbilling/internal/scheduler"
	"github.com/smallbiznis/portbilling/internal/server"
	"github.com/smallbiznis/portbilling/internal/tariff"
	"github.com/smallbiznis/portbilling/internal/tax"
	"github.com/smallbiznis/portbilling/internal/usage"
	"github.com/smallbiznis/portbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		keylock.Module,

		billingcycle.Module,
		tax.Module,
		tariff.Module,
		exchangerate.Module,
		usage.Module,
		rating.Module,
		invoice.Module,
		billingevent.Module,

		// Manual runs only; the periodic loop lives in apps/scheduler.
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
