package domain

import (
	"context"
	"time"
)

type Repository interface {
	// FindOn returns the rate published for exactly date, or nil.
	FindOn(ctx context.Context, base, quote string, date time.Time) (*ExchangeRate, error)
	Save(ctx context.Context, rate *ExchangeRate) error
	List(ctx context.Context, base, quote string, from, to time.Time) ([]ExchangeRate, error)
}
