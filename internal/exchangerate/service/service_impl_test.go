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
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	"github.com/smallbiznis/portbilling/internal/exchangerate/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, repo exchangeratedomain.Repository, cfg config.BillingConfig) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{
		Repository: repo,
		Holder:     config.NewStaticBillingConfigHolder(cfg),
		GenID:      node,
		Clock:      clock.NewFakeClock(day(2024, 3, 1)),
		Log:        zap.NewNop(),
	})
}

func setupRateService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&exchangeratedomain.ExchangeRate{}))
	return newTestService(t, repository.NewRepository(db), config.DefaultBillingConfig())
}

func publish(t *testing.T, svc *Service, base, quote, date, rate string) {
	t.Helper()
	_, err := svc.Publish(context.Background(), exchangeratedomain.PublishRequest{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		RateDate:      date,
		Rate:          decimal.RequireFromString(rate),
		Source:        "TCMB",
	})
	require.NoError(t, err)
}

func TestRateOnExactDate(t *testing.T) {
	svc := setupRateService(t)
	publish(t, svc, "USD", "TRY", "2024-03-08", "31.9500")

	res, err := svc.RateOn(context.Background(), day(2024, 3, 8), "usd", "try")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("31.95")))
	assert.False(t, res.IsFallback)
	assert.Equal(t, day(2024, 3, 8), res.ResolvedDate)
}

func TestRateOnSaturdayFallsBackToFriday(t *testing.T) {
	svc := setupRateService(t)
	publish(t, svc, "USD", "TRY", "2024-03-07", "31.9000")
	publish(t, svc, "USD", "TRY", "2024-03-08", "31.9500")
	publish(t, svc, "USD", "TRY", "2024-03-11", "32.1000")

	saturday := day(2024, 3, 9)
	require.Equal(t, time.Saturday, saturday.Weekday())

	res, err := svc.RateOn(context.Background(), saturday, "USD", "TRY")
	require.NoError(t, err)
	assert.True(t, res.IsFallback)
	assert.Equal(t, day(2024, 3, 8), res.ResolvedDate)
	assert.Equal(t, saturday, res.RequestedDate)
	assert.Equal(t, 1, res.FallbackDays())
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("31.95")))
}

func TestRateOnUsesInversePair(t *testing.T) {
	svc := setupRateService(t)
	publish(t, svc, "EUR", "TRY", "2024-03-08", "40")

	res, err := svc.RateOn(context.Background(), day(2024, 3, 8), "TRY", "EUR")
	require.NoError(t, err)
	assert.True(t, res.Inverted)
	assert.Equal(t, "0.025", res.Rate.String())
}

func TestRateOnSameCurrency(t *testing.T) {
	svc := setupRateService(t)
	res, err := svc.RateOn(context.Background(), day(2024, 3, 9), "TRY", "TRY")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(1)))
	assert.False(t, res.IsFallback)
}

func TestRateOnExhaustsBound(t *testing.T) {
	svc := setupRateService(t)
	publish(t, svc, "USD", "TRY", "2024-02-20", "30.5")

	_, err := svc.RateOn(context.Background(), day(2024, 3, 9), "USD", "TRY")
	assert.True(t, errors.Is(err, exchangeratedomain.ErrRateUnavailable))

	res, err := svc.RateOn(context.Background(), day(2024, 3, 9), "USD", "TRY", exchangeratedomain.WithMaxFallbackDays(20))
	require.NoError(t, err)
	assert.Equal(t, day(2024, 2, 20), res.ResolvedDate)
}

func TestRateOnNeverStepsForward(t *testing.T) {
	svc := setupRateService(t)
	publish(t, svc, "USD", "TRY", "2024-03-11", "32.1")

	_, err := svc.RateOn(context.Background(), day(2024, 3, 9), "USD", "TRY")
	assert.True(t, errors.Is(err, exchangeratedomain.ErrRateUnavailable))
}

type blockingRepo struct{}

func (blockingRepo) FindOn(ctx context.Context, base, quote string, date time.Time) (*exchangeratedomain.ExchangeRate, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingRepo) Save(ctx context.Context, rate *exchangeratedomain.ExchangeRate) error {
	return nil
}

func (blockingRepo) List(ctx context.Context, base, quote string, from, to time.Time) ([]exchangeratedomain.ExchangeRate, error) {
	return nil, nil
}

func TestRateOnTimeoutIsRateUnavailable(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.RateLookupTimeout = 20 * time.Millisecond
	svc := newTestService(t, blockingRepo{}, cfg)

	_, err := svc.RateOn(context.Background(), day(2024, 3, 8), "USD", "TRY")
	assert.True(t, errors.Is(err, exchangeratedomain.ErrRateUnavailable))
}

func TestPublishValidates(t *testing.T) {
	svc := setupRateService(t)
	ctx := context.Background()

	_, err := svc.Publish(ctx, exchangeratedomain.PublishRequest{BaseCurrency: "USD", QuoteCurrency: "USD", RateDate: "2024-03-08", Rate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, exchangeratedomain.ErrInvalidCurrency)

	_, err = svc.Publish(ctx, exchangeratedomain.PublishRequest{BaseCurrency: "USD", QuoteCurrency: "TRY", RateDate: "2024-03-08", Rate: decimal.Zero})
	assert.ErrorIs(t, err, exchangeratedomain.ErrInvalidRate)

	_, err = svc.Publish(ctx, exchangeratedomain.PublishRequest{BaseCurrency: "USD", QuoteCurrency: "TRY", RateDate: "08/03/2024", Rate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, exchangeratedomain.ErrInvalidRateDate)
}
