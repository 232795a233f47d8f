package domain

import (
	"context"
	"time"
)

// Service exposes the billing calendar built from the live billing policy.
type Service interface {
	Calendar() (*Calendar, error)
	PeriodFor(ctx context.Context, date time.Time) (BillingPeriod, error)
	PeriodsInMonth(ctx context.Context, year int, month time.Month) ([]BillingPeriod, error)
}
