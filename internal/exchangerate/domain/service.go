package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Policy bounds the backward scan. A billing run passes the policy it
// snapshotted at start so a config reload never changes it mid-run.
type Policy struct {
	MaxFallbackDays int
	LookupTimeout   time.Duration
}

type Option func(*Policy)

func WithPolicy(p Policy) Option {
	return func(dst *Policy) {
		*dst = p
	}
}

func WithMaxFallbackDays(days int) Option {
	return func(p *Policy) {
		p.MaxFallbackDays = days
	}
}

// Resolver resolves a conversion rate for a date, stepping back over
// non-trading days. It never steps forward.
type Resolver interface {
	RateOn(ctx context.Context, date time.Time, from, to string, opts ...Option) (Resolution, error)
}

type PublishRequest struct {
	BaseCurrency  string          `json:"base_currency"`
	QuoteCurrency string          `json:"quote_currency"`
	RateDate      string          `json:"rate_date"`
	Rate          decimal.Decimal `json:"rate"`
	Source        string          `json:"source"`
}

type Service interface {
	Publish(ctx context.Context, req PublishRequest) (*ExchangeRate, error)
	List(ctx context.Context, base, quote string, from, to time.Time) ([]ExchangeRate, error)
}

var (
	ErrRateUnavailable = errors.New("rate_unavailable")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidRate     = errors.New("invalid_rate")
	ErrInvalidRateDate = errors.New("invalid_rate_date")
)
