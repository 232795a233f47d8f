package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	billingcycleservice "github.com/smallbiznis/portbilling/internal/billingcycle/service"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	exchangeraterepository "github.com/smallbiznis/portbilling/internal/exchangerate/repository"
	exchangerateservice "github.com/smallbiznis/portbilling/internal/exchangerate/service"
	ratingdomain "github.com/smallbiznis/portbilling/internal/rating/domain"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	tariffrepository "github.com/smallbiznis/portbilling/internal/tariff/repository"
	tariffservice "github.com/smallbiznis/portbilling/internal/tariff/service"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	taxrepository "github.com/smallbiznis/portbilling/internal/tax/repository"
	taxservice "github.com/smallbiznis/portbilling/internal/tax/service"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	usagerepository "github.com/smallbiznis/portbilling/internal/usage/repository"
	usageservice "github.com/smallbiznis/portbilling/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	rating  ratingdomain.Service
	usage   usagedomain.Service
	tariffs *tariffservice.Service
	rates   *exchangerateservice.Service
	vat     *taxservice.Service
	cal     *billingcycledomain.Calendar
}

func setupRating(t *testing.T, cfg config.BillingConfig) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&usagedomain.UsageRecord{},
		&tariffdomain.Tariff{},
		&tariffdomain.TariffAssignment{},
		&taxdomain.VatCode{},
		&exchangeratedomain.ExchangeRate{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
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
	cal, err := calendars.Calendar()
	require.NoError(t, err)

	ctx := context.Background()
	_, err = vat.Upsert(ctx, taxdomain.UpsertRequest{Code: "KDV20", Name: "KDV %20", RatePercent: decimal.NewFromInt(20)})
	require.NoError(t, err)
	_, err = tariffs.CreateTariff(ctx, tariffdomain.CreateTariffRequest{
		ServiceCode: "PILOTAGE",
		UnitPrice:   decimal.NewFromInt(1500),
		Currency:    "TRY",
		VatCode:     "KDV20",
		ValidFrom:   "2024-01-01",
	})
	require.NoError(t, err)
	_, err = tariffs.Assign(ctx, tariffdomain.AssignRequest{ServiceType: "VOYAGE", ServiceCode: "PILOTAGE"})
	require.NoError(t, err)

	return &fixture{
		rating: NewService(ServiceParam{
			Log:       log,
			Holder:    holder,
			Calendars: calendars,
			Usage:     usage,
			Tariffs:   tariffs,
			Rates:     rates,
		}),
		usage:   usage,
		tariffs: tariffs,
		rates:   rates,
		vat:     vat,
		cal:     cal,
	}
}

func utcConfig() config.BillingConfig {
	cfg := config.DefaultBillingConfig()
	cfg.Timezone = "UTC"
	return cfg
}

func (f *fixture) voyage(t *testing.T, customer, vessel string, returnAt time.Time) {
	t.Helper()
	ctx := context.Background()
	record, err := f.usage.RecordDeparture(ctx, usagedomain.RecordDepartureRequest{
		CustomerCode: customer,
		VesselCode:   vessel,
		DepartureAt:  returnAt.Add(-6 * time.Hour),
		UnitPrice:    decimal.NewFromInt(1500),
		Currency:     "TRY",
	})
	require.NoError(t, err)
	_, err = f.usage.RecordReturn(ctx, usagedomain.RecordReturnRequest{ID: record.ID.String(), ReturnAt: returnAt})
	require.NoError(t, err)
}

func (f *fixture) period(t *testing.T, y int, m time.Month, d int) billingcycledomain.BillingPeriod {
	t.Helper()
	p, err := f.cal.PeriodFor(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestAggregateSplitsVoyagesByPeriod(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 3, 18, 0, 0, 0, time.UTC))
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))

	first, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "cr-001", Period: f.period(t, 2024, time.March, 1)})
	require.NoError(t, err)
	assert.Equal(t, "CR-001", first.CustomerCode)
	assert.Equal(t, "TRY", first.Currency)
	require.Len(t, first.Lines, 1)
	assert.Equal(t, "PILOTAGE", first.Lines[0].ServiceCode)
	assert.Equal(t, int64(2), first.Lines[0].Quantity)
	assert.Equal(t, "3000.00", first.Subtotal.StringFixed(2))
	assert.Equal(t, "600.00", first.VatAmount.StringFixed(2))
	assert.Equal(t, "3600.00", first.GrandTotal.StringFixed(2))

	number, err := first.InvoiceNumber()
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-07-CR-001", number)

	second, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 8)})
	require.NoError(t, err)
	require.Len(t, second.Lines, 1)
	assert.Equal(t, int64(1), second.Lines[0].Quantity)
	assert.Equal(t, "1800.00", second.GrandTotal.StringFixed(2))
}

func TestAggregateCutoffDayBelongsToClosingPeriod(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 7, 23, 59, 59, 0, time.UTC))
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))

	first, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 7)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Lines[0].Quantity)

	second, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 8)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Lines[0].Quantity)
}

func TestAggregateUsesBillingTimezone(t *testing.T) {
	f := setupRating(t, config.DefaultBillingConfig())
	ctx := context.Background()
	// 22:30 UTC on the 7th is already the 8th in Istanbul.
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 7, 22, 30, 0, 0, time.UTC))

	_, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 7)})
	assert.True(t, errors.Is(err, ratingdomain.ErrNoBillableUsage))

	draft, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 8)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), draft.Lines[0].Quantity)
}

func TestAggregateWithoutUsage(t *testing.T) {
	f := setupRating(t, utcConfig())
	_, err := f.rating.Aggregate(context.Background(), ratingdomain.AggregateRequest{CustomerCode: "CR-404", Period: f.period(t, 2024, time.March, 1)})
	assert.True(t, errors.Is(err, ratingdomain.ErrNoBillableUsage))
}

func TestAggregateRejectsInvalidRequest(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()

	_, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{Period: f.period(t, 2024, time.March, 1)})
	assert.True(t, errors.Is(err, ratingdomain.ErrInvalidCustomer))

	_, err = f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001"})
	assert.True(t, errors.Is(err, ratingdomain.ErrInvalidPeriod))
}

func TestAggregateConvertsForeignTariffWithFallbackRate(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()

	_, err := f.tariffs.CreateTariff(ctx, tariffdomain.CreateTariffRequest{
		ServiceCode: "BERTHING",
		UnitPrice:   decimal.NewFromInt(100),
		Currency:    "USD",
		VatCode:     "KDV20",
		ValidFrom:   "2024-01-01",
	})
	require.NoError(t, err)
	_, err = f.tariffs.Assign(ctx, tariffdomain.AssignRequest{VesselCode: "OCEAN-1", ServiceType: "VOYAGE", ServiceCode: "BERTHING"})
	require.NoError(t, err)
	_, err = f.rates.Publish(ctx, exchangeratedomain.PublishRequest{
		BaseCurrency:  "USD",
		QuoteCurrency: "TRY",
		RateDate:      "2024-03-29",
		Rate:          decimal.RequireFromString("32.25"),
		Source:        "TCMB",
	})
	require.NoError(t, err)

	f.voyage(t, "CR-002", "OCEAN-1", time.Date(2024, 3, 30, 10, 0, 0, 0, time.UTC))
	f.voyage(t, "CR-002", "SEA-STAR", time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC))

	period := f.period(t, 2024, time.March, 30)
	require.True(t, period.EndOfMonth)

	draft, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-002", Period: period})
	require.NoError(t, err)
	require.Len(t, draft.Lines, 2)

	berthing := draft.Lines[0]
	assert.Equal(t, "BERTHING", berthing.ServiceCode)
	assert.Equal(t, "USD", berthing.TariffCurrency)
	assert.Equal(t, "3225.00", berthing.Amount.StringFixed(2))
	assert.True(t, berthing.RateIsFallback)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), berthing.RateDate)

	pilotage := draft.Lines[1]
	assert.Equal(t, "PILOTAGE", pilotage.ServiceCode)
	assert.False(t, pilotage.RateIsFallback)

	assert.Equal(t, "4725.00", draft.Subtotal.StringFixed(2))
	assert.Equal(t, "945.00", draft.VatAmount.StringFixed(2))
	assert.Equal(t, "5670.00", draft.GrandTotal.StringFixed(2))

	number, err := draft.InvoiceNumber()
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-EOM-CR-002", number)
}

func TestAggregateFailsWhenRateUnavailable(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()

	_, err := f.tariffs.CreateTariff(ctx, tariffdomain.CreateTariffRequest{
		ServiceCode: "BERTHING",
		UnitPrice:   decimal.NewFromInt(100),
		Currency:    "EUR",
		VatCode:     "KDV20",
		ValidFrom:   "2024-01-01",
	})
	require.NoError(t, err)
	_, err = f.tariffs.Assign(ctx, tariffdomain.AssignRequest{VesselCode: "OCEAN-1", ServiceType: "VOYAGE", ServiceCode: "BERTHING"})
	require.NoError(t, err)
	f.voyage(t, "CR-002", "OCEAN-1", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))

	_, err = f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-002", Period: f.period(t, 2024, time.March, 2)})
	assert.True(t, errors.Is(err, exchangeratedomain.ErrRateUnavailable))
}

func TestAggregateFailsWhenTariffMissing(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()

	_, err := f.tariffs.Assign(ctx, tariffdomain.AssignRequest{VesselCode: "OCEAN-1", ServiceType: "VOYAGE", ServiceCode: "ANCHORAGE"})
	require.NoError(t, err)
	f.voyage(t, "CR-002", "OCEAN-1", time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))

	_, err = f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-002", Period: f.period(t, 2024, time.March, 2)})
	assert.True(t, errors.Is(err, tariffdomain.ErrTariffNotFound))
}

func TestAggregateUsesTariffValidAtPeriodStart(t *testing.T) {
	f := setupRating(t, utcConfig())
	ctx := context.Background()

	_, err := f.tariffs.CreateTariff(ctx, tariffdomain.CreateTariffRequest{
		ServiceCode: "PILOTAGE",
		UnitPrice:   decimal.NewFromInt(2000),
		Currency:    "TRY",
		VatCode:     "KDV20",
		ValidFrom:   "2024-03-04",
	})
	require.NoError(t, err)
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	f.voyage(t, "CR-001", "SEA-STAR", time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC))

	// The new price applies mid-period, so the first period keeps the old one.
	draft, err := f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 1)})
	require.NoError(t, err)
	assert.Equal(t, "1500.00", draft.Lines[0].Amount.StringFixed(2))

	draft, err = f.rating.Aggregate(ctx, ratingdomain.AggregateRequest{CustomerCode: "CR-001", Period: f.period(t, 2024, time.March, 8)})
	require.NoError(t, err)
	assert.Equal(t, "2000.00", draft.Lines[0].Amount.StringFixed(2))
}
