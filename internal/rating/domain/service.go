// Package domain defines the period aggregator that turns returned voyages
// into invoice drafts.
package domain

import (
	"context"
	"errors"

	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
)

type AggregateRequest struct {
	CustomerCode string
	Period       billingcycledomain.BillingPeriod
	// Calendar converts the period into query bounds. Nil uses the live calendar.
	Calendar *billingcycledomain.Calendar
	// SettlementCurrency defaults to the configured one when empty.
	SettlementCurrency string
	// RatePolicy is applied to every rate lookup when set.
	RatePolicy *exchangeratedomain.Policy
}

type Service interface {
	// Aggregate returns ErrNoBillableUsage when the customer has no returned
	// voyage in the period; no draft exists for such a key.
	Aggregate(ctx context.Context, req AggregateRequest) (invoicedomain.Draft, error)
}

var (
	ErrNoBillableUsage = errors.New("no_billable_usage")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidPeriod   = errors.New("invalid_period")
)
