package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/portbilling/internal/cache"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	"github.com/smallbiznis/portbilling/internal/observability/metrics"
	"github.com/smallbiznis/portbilling/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const rateCacheTTL = 15 * time.Minute

type Params struct {
	fx.In

	Repository exchangeratedomain.Repository
	Holder     *config.BillingConfigHolder
	GenID      *snowflake.Node
	Clock      clock.Clock
	Log        *zap.Logger
	Metrics    *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	repo    exchangeratedomain.Repository
	holder  *config.BillingConfigHolder
	genID   *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.BillingMetrics
	cache   cache.Cache[string, exchangeratedomain.ExchangeRate]
}

func NewService(p Params) *Service {
	return &Service{
		repo:    p.Repository,
		holder:  p.Holder,
		genID:   p.GenID,
		clock:   p.Clock,
		log:     p.Log.Named("exchangerate.service"),
		metrics: p.Metrics,
		cache:   cache.NewTTLCache[string, exchangeratedomain.ExchangeRate](),
	}
}

func NewResolver(s *Service) exchangeratedomain.Resolver { return s }

func NewManagement(s *Service) exchangeratedomain.Service { return s }

// RateOn looks up the rate published for date and steps back one day at a
// time, up to the policy bound, when none is published.
func (s *Service) RateOn(ctx context.Context, date time.Time, from, to string, opts ...exchangeratedomain.Option) (exchangeratedomain.Resolution, error) {
	if date.IsZero() {
		return exchangeratedomain.Resolution{}, billingcycledomain.ErrInvalidDate
	}
	fromCode, err := money.NormalizeCurrency(from)
	if err != nil {
		return exchangeratedomain.Resolution{}, fmt.Errorf("%w: %q", exchangeratedomain.ErrInvalidCurrency, from)
	}
	toCode, err := money.NormalizeCurrency(to)
	if err != nil {
		return exchangeratedomain.Resolution{}, fmt.Errorf("%w: %q", exchangeratedomain.ErrInvalidCurrency, to)
	}
	from, to = fromCode, toCode

	requested := truncateDate(date)
	if from == to {
		return exchangeratedomain.Resolution{
			FromCurrency:  from,
			ToCurrency:    to,
			Rate:          decimal.NewFromInt(1),
			RequestedDate: requested,
			ResolvedDate:  requested,
		}, nil
	}

	policy := s.defaultPolicy()
	for _, opt := range opts {
		opt(&policy)
	}

	for step := 0; step <= policy.MaxFallbackDays; step++ {
		day := requested.AddDate(0, 0, -step)
		rate, inverted, err := s.lookup(ctx, policy.LookupTimeout, day, from, to)
		if err != nil {
			return exchangeratedomain.Resolution{}, err
		}
		if rate.IsZero() {
			continue
		}

		resolution := exchangeratedomain.Resolution{
			FromCurrency:  from,
			ToCurrency:    to,
			Rate:          rate,
			RequestedDate: requested,
			ResolvedDate:  day,
			IsFallback:    step > 0,
			Inverted:      inverted,
		}
		if resolution.IsFallback {
			if s.metrics != nil {
				s.metrics.ObserveRateFallback(step)
			}
			s.log.Info("rate.fallback",
				zap.String("from", from),
				zap.String("to", to),
				zap.String("requested_date", billingcycledomain.FormatDate(requested)),
				zap.String("resolved_date", billingcycledomain.FormatDate(day)),
				zap.Int("days", step),
			)
		}
		return resolution, nil
	}

	return exchangeratedomain.Resolution{}, fmt.Errorf("%w: %s/%s on %s (scanned %d days back)",
		exchangeratedomain.ErrRateUnavailable, from, to, billingcycledomain.FormatDate(requested), policy.MaxFallbackDays)
}

// lookup returns a zero rate when neither the pair nor its inverse is published on day.
func (s *Service) lookup(ctx context.Context, timeout time.Duration, day time.Time, from, to string) (decimal.Decimal, bool, error) {
	direct, err := s.findOn(ctx, timeout, from, to, day)
	if err != nil {
		return decimal.Zero, false, err
	}
	if direct != nil {
		return direct.Rate, false, nil
	}

	inverse, err := s.findOn(ctx, timeout, to, from, day)
	if err != nil {
		return decimal.Zero, false, err
	}
	if inverse != nil && inverse.Rate.IsPositive() {
		return decimal.NewFromInt(1).DivRound(inverse.Rate, money.RateScale), true, nil
	}
	return decimal.Zero, false, nil
}

func (s *Service) findOn(ctx context.Context, timeout time.Duration, base, quote string, day time.Time) (*exchangeratedomain.ExchangeRate, error) {
	key := base + "|" + quote + "|" + billingcycledomain.FormatDate(day)
	if cached, ok := s.cache.Get(key); ok {
		return &cached, nil
	}

	lookupCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rate, err := s.repo.FindOn(lookupCtx, base, quote, day)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: lookup %s/%s timed out: %w", exchangeratedomain.ErrRateUnavailable, base, quote, err)
		}
		return nil, err
	}
	if rate == nil {
		return nil, nil
	}
	s.cache.Set(key, *rate, rateCacheTTL)
	return rate, nil
}

func (s *Service) Publish(ctx context.Context, req exchangeratedomain.PublishRequest) (*exchangeratedomain.ExchangeRate, error) {
	base, err := money.NormalizeCurrency(req.BaseCurrency)
	if err != nil {
		return nil, exchangeratedomain.ErrInvalidCurrency
	}
	quote, err := money.NormalizeCurrency(req.QuoteCurrency)
	if err != nil || quote == base {
		return nil, exchangeratedomain.ErrInvalidCurrency
	}
	if !req.Rate.IsPositive() {
		return nil, exchangeratedomain.ErrInvalidRate
	}
	rateDate, err := billingcycledomain.ParseDate(req.RateDate)
	if err != nil {
		return nil, exchangeratedomain.ErrInvalidRateDate
	}

	now := s.clock.Now().UTC()
	rate := &exchangeratedomain.ExchangeRate{
		ID:            s.genID.Generate(),
		BaseCurrency:  base,
		QuoteCurrency: quote,
		RateDate:      rateDate,
		Rate:          req.Rate,
		Source:        strings.TrimSpace(req.Source),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Save(ctx, rate); err != nil {
		return nil, err
	}
	s.cache.Purge()

	s.log.Info("rate.published",
		zap.String("base", base),
		zap.String("quote", quote),
		zap.String("rate_date", req.RateDate),
		zap.String("rate", req.Rate.String()),
	)
	return rate, nil
}

func (s *Service) List(ctx context.Context, base, quote string, from, to time.Time) ([]exchangeratedomain.ExchangeRate, error) {
	base, err := money.NormalizeCurrency(base)
	if err != nil {
		return nil, exchangeratedomain.ErrInvalidCurrency
	}
	quote, err = money.NormalizeCurrency(quote)
	if err != nil {
		return nil, exchangeratedomain.ErrInvalidCurrency
	}
	if to.Before(from) {
		return nil, billingcycledomain.ErrInvalidDate
	}
	return s.repo.List(ctx, base, quote, truncateDate(from), truncateDate(to))
}

func (s *Service) defaultPolicy() exchangeratedomain.Policy {
	if s.holder == nil {
		defaults := config.DefaultBillingConfig()
		return exchangeratedomain.Policy{MaxFallbackDays: defaults.RateFallbackMaxDays, LookupTimeout: defaults.RateLookupTimeout}
	}
	cfg := s.holder.Get()
	return exchangeratedomain.Policy{MaxFallbackDays: cfg.RateFallbackMaxDays, LookupTimeout: cfg.RateLookupTimeout}
}

func truncateDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
