package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portbilling/internal/clock"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	"github.com/smallbiznis/portbilling/internal/tariff/repository"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	taxrepository "github.com/smallbiznis/portbilling/internal/tax/repository"
	taxservice "github.com/smallbiznis/portbilling/internal/tax/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type vatStub map[string]decimal.Decimal

func (v vatStub) Resolve(ctx context.Context, code string) (taxdomain.VatCode, error) {
	rate, ok := v[code]
	if !ok {
		return taxdomain.VatCode{}, taxdomain.ErrVatCodeNotFound
	}
	return taxdomain.VatCode{Code: code, RatePercent: rate}, nil
}

func setupTariffService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tariffdomain.Tariff{}, &tariffdomain.TariffAssignment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{
		Repository:  repository.NewRepository(db),
		VatResolver: vatStub{"KDV20": decimal.NewFromInt(20), "KDV10": decimal.NewFromInt(10)},
		GenID:       node,
		Clock:       clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Log:         zap.NewNop(),
	})
}

func mustCreate(t *testing.T, svc *Service, price int64, validFrom, vat string) *tariffdomain.Tariff {
	t.Helper()
	tariff, err := svc.CreateTariff(context.Background(), tariffdomain.CreateTariffRequest{
		ServiceCode: "PILOTAGE",
		UnitPrice:   decimal.NewFromInt(price),
		Currency:    "TRY",
		VatCode:     vat,
		ValidFrom:   validFrom,
	})
	require.NoError(t, err)
	return tariff
}

func TestTariffAtPicksLatestValidVersion(t *testing.T) {
	svc := setupTariffService(t)
	ctx := context.Background()

	mustCreate(t, svc, 1200, "2024-01-01", "KDV20")
	mustCreate(t, svc, 1500, "2024-03-01", "KDV20")
	mustCreate(t, svc, 1800, "2024-04-01", "KDV10")

	quote, err := svc.TariffAt(ctx, "pilotage", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, quote.UnitPrice.Equal(decimal.NewFromInt(1500)))
	assert.True(t, quote.VatRate.Equal(decimal.NewFromInt(20)))

	quote, err = svc.TariffAt(ctx, "PILOTAGE", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, quote.UnitPrice.Equal(decimal.NewFromInt(1200)))

	quote, err = svc.TariffAt(ctx, "PILOTAGE", time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, quote.VatRate.Equal(decimal.NewFromInt(10)))

	_, err = svc.TariffAt(ctx, "PILOTAGE", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, tariffdomain.ErrTariffNotFound))
}

func TestTariffAtTieBreaksOnHighestID(t *testing.T) {
	svc := setupTariffService(t)
	mustCreate(t, svc, 1000, "2024-03-01", "KDV20")
	second := mustCreate(t, svc, 1100, "2024-03-01", "KDV20")

	quote, err := svc.TariffAt(context.Background(), "PILOTAGE", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, second.ID, quote.TariffID)
}

func TestServiceCodeForFallsBackToDefaultAssignment(t *testing.T) {
	svc := setupTariffService(t)
	ctx := context.Background()

	_, err := svc.Assign(ctx, tariffdomain.AssignRequest{ServiceType: "VOYAGE", ServiceCode: "PILOTAGE"})
	require.NoError(t, err)
	_, err = svc.Assign(ctx, tariffdomain.AssignRequest{VesselCode: "TUG-7", ServiceType: "VOYAGE", ServiceCode: "TOWAGE"})
	require.NoError(t, err)

	code, err := svc.ServiceCodeFor(ctx, "tug-7", "voyage")
	require.NoError(t, err)
	assert.Equal(t, "TOWAGE", code)

	code, err = svc.ServiceCodeFor(ctx, "SEA-STAR", "VOYAGE")
	require.NoError(t, err)
	assert.Equal(t, "PILOTAGE", code)

	_, err = svc.ServiceCodeFor(ctx, "SEA-STAR", "MOORING")
	assert.True(t, errors.Is(err, tariffdomain.ErrTariffNotFound))
}

func TestCreateTariffRejectsUnknownVatCode(t *testing.T) {
	svc := setupTariffService(t)
	_, err := svc.CreateTariff(context.Background(), tariffdomain.CreateTariffRequest{
		ServiceCode: "PILOTAGE",
		UnitPrice:   decimal.NewFromInt(10),
		Currency:    "TRY",
		VatCode:     "KDV99",
		ValidFrom:   "2024-01-01",
	})
	assert.True(t, errors.Is(err, taxdomain.ErrVatCodeNotFound))
}

func TestTariffAtSeesVatRateChangeImmediately(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tariffdomain.Tariff{}, &tariffdomain.TariffAssignment{}, &taxdomain.VatCode{}))

	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	vat := taxservice.NewService(taxservice.Params{
		Repository: taxrepository.NewRepository(db),
		Clock:      fake,
		Log:        zap.NewNop(),
	})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(Params{
		Repository:  repository.NewRepository(db),
		VatResolver: vat,
		GenID:       node,
		Clock:       fake,
		Log:         zap.NewNop(),
	})
	ctx := context.Background()

	_, err = vat.Upsert(ctx, taxdomain.UpsertRequest{Code: "KDV20", RatePercent: decimal.NewFromInt(20)})
	require.NoError(t, err)
	mustCreate(t, svc, 1500, "2024-03-01", "KDV20")

	asOf := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	quote, err := svc.TariffAt(ctx, "PILOTAGE", asOf)
	require.NoError(t, err)
	assert.Equal(t, "20", quote.VatRate.String())

	_, err = vat.Upsert(ctx, taxdomain.UpsertRequest{Code: "KDV20", RatePercent: decimal.NewFromInt(18)})
	require.NoError(t, err)

	quote, err = svc.TariffAt(ctx, "PILOTAGE", asOf)
	require.NoError(t, err)
	assert.Equal(t, "18", quote.VatRate.String())
	assert.True(t, quote.UnitPrice.Equal(decimal.NewFromInt(1500)))
}
