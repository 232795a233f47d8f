// Package testenv wires the billing services on an in-memory SQLite database
// for package tests.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	billingcycleservice "github.com/smallbiznis/portbilling/internal/billingcycle/service"
	"github.com/smallbiznis/portbilling/internal/billingevent/publisher"
	billingeventrepository "github.com/smallbiznis/portbilling/internal/billingevent/repository"
	billingeventservice "github.com/smallbiznis/portbilling/internal/billingevent/service"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeraterepository "github.com/smallbiznis/portbilling/internal/exchangerate/repository"
	exchangerateservice "github.com/smallbiznis/portbilling/internal/exchangerate/service"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/portbilling/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/portbilling/internal/invoice/service"
	"github.com/smallbiznis/portbilling/internal/keylock"
	"github.com/smallbiznis/portbilling/internal/migration"
	ratingdomain "github.com/smallbiznis/portbilling/internal/rating/domain"
	ratingservice "github.com/smallbiznis/portbilling/internal/rating/service"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	tariffrepository "github.com/smallbiznis/portbilling/internal/tariff/repository"
	tariffservice "github.com/smallbiznis/portbilling/internal/tariff/service"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	taxrepository "github.com/smallbiznis/portbilling/internal/tax/repository"
	taxservice "github.com/smallbiznis/portbilling/internal/tax/service"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	usagerepository "github.com/smallbiznis/portbilling/internal/usage/repository"
	usageservice "github.com/smallbiznis/portbilling/internal/usage/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Env holds every billing service backed by one database.
type Env struct {
	DB        *gorm.DB
	Clock     *clock.FakeClock
	GenID     *snowflake.Node
	Log       *zap.Logger
	Holder    *config.BillingConfigHolder
	Calendars billingcycledomain.Service
	Usage     usagedomain.Service
	Vat       *taxservice.Service
	Tariffs   *tariffservice.Service
	Rates     *exchangerateservice.Service
	Rating    ratingdomain.Service
	Invoices  invoicedomain.Service
	Events    *billingeventservice.Service
}

// UTCConfig is the default billing policy evaluated in UTC.
func UTCConfig() config.BillingConfig {
	cfg := config.DefaultBillingConfig()
	cfg.Timezone = "UTC"
	return cfg
}

// New builds the stack. The clock starts at now.
func New(t *testing.T, cfg config.BillingConfig, now time.Time) *Env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	// parallel batch keys share one connection so SQLite never reports a locked table.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(now)
	log := zap.NewNop()
	holder := config.NewStaticBillingConfigHolder(cfg)

	vat := taxservice.NewService(taxservice.Params{
		Repository: taxrepository.NewRepository(db),
		Clock:      fake,
		Log:        log,
	})
	tariffs := tariffservice.NewService(tariffservice.Params{
		Repository:  tariffrepository.NewRepository(db),
		VatResolver: vat,
		GenID:       node,
		Clock:       fake,
		Log:         log,
	})
	rates := exchangerateservice.NewService(exchangerateservice.Params{
		Repository: exchangeraterepository.NewRepository(db),
		Holder:     holder,
		GenID:      node,
		Clock:      fake,
		Log:        log,
	})
	usage := usageservice.NewService(usageservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  usagerepository.Provide(),
	})
	calendars := billingcycleservice.NewService(billingcycleservice.Params{Holder: holder, Log: log})
	events := billingeventservice.NewService(billingeventservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      billingeventrepository.Provide(),
		Publisher: publisher.NewLogPublisher(log),
	})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  fake,
		Repo:   invoicerepository.Provide(),
		Locker: keylock.NewLocal(),
		Outbox: events,
	})
	rating := ratingservice.NewService(ratingservice.ServiceParam{
		Log:       log,
		Holder:    holder,
		Calendars: calendars,
		Usage:     usage,
		Tariffs:   tariffs,
		Rates:     rates,
	})

	return &Env{
		DB:        db,
		Clock:     fake,
		GenID:     node,
		Log:       log,
		Holder:    holder,
		Calendars: calendars,
		Usage:     usage,
		Vat:       vat,
		Tariffs:   tariffs,
		Rates:     rates,
		Rating:    rating,
		Invoices:  invoices,
		Events:    events,
	}
}

// SeedPilotage registers KDV20 and a default VOYAGE tariff of 1500 TRY.
func (e *Env) SeedPilotage(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.Vat.Upsert(ctx, taxdomain.UpsertRequest{Code: "KDV20", Name: "KDV %20", RatePercent: decimal.NewFromInt(20)})
	require.NoError(t, err)
	_, err = e.Tariffs.CreateTariff(ctx, tariffdomain.CreateTariffRequest{
		ServiceCode: "PILOTAGE",
		Description: "Pilotage voyage",
		UnitPrice:   decimal.NewFromInt(1500),
		Currency:    "TRY",
		VatCode:     "KDV20",
		ValidFrom:   "2024-01-01",
	})
	require.NoError(t, err)
	_, err = e.Tariffs.Assign(ctx, tariffdomain.AssignRequest{ServiceType: usagedomain.DefaultServiceType, ServiceCode: "PILOTAGE"})
	require.NoError(t, err)
}

// Voyage records a departed and returned voyage.
func (e *Env) Voyage(t *testing.T, customer, vessel string, returnAt time.Time) *usagedomain.UsageRecord {
	t.Helper()
	ctx := context.Background()
	record, err := e.Usage.RecordDeparture(ctx, usagedomain.RecordDepartureRequest{
		CustomerCode: customer,
		VesselCode:   vessel,
		DepartureAt:  returnAt.Add(-6 * time.Hour),
		UnitPrice:    decimal.NewFromInt(1500),
		Currency:     "TRY",
	})
	require.NoError(t, err)
	returned, err := e.Usage.RecordReturn(ctx, usagedomain.RecordReturnRequest{ID: record.ID.String(), ReturnAt: returnAt})
	require.NoError(t, err)
	return returned
}
