package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type RecordDepartureRequest struct {
	CustomerCode string          `json:"customer_code"`
	VesselCode   string          `json:"vessel_code"`
	ServiceType  string          `json:"service_type"`
	DepartureAt  time.Time       `json:"departure_at"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Currency     string          `json:"currency"`
}

type RecordReturnRequest struct {
	ID       string    `json:"id"`
	ReturnAt time.Time `json:"return_at"`
}

// Service is the voyage-logging surface and the usage query used by rating.
type Service interface {
	RecordDeparture(ctx context.Context, req RecordDepartureRequest) (*UsageRecord, error)
	RecordReturn(ctx context.Context, req RecordReturnRequest) (*UsageRecord, error)
	ListReturned(ctx context.Context, customerCode string, from, to time.Time) ([]UsageRecord, error)
	ListCustomersWithReturned(ctx context.Context, from, to time.Time) ([]string, error)
}

var (
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidVessel      = errors.New("invalid_vessel")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidDepartureAt = errors.New("invalid_departure_at")
	ErrInvalidReturnAt    = errors.New("invalid_return_at")
	ErrInvalidRange       = errors.New("invalid_range")
	ErrUsageNotFound      = errors.New("usage_not_found")
	ErrAlreadyReturned    = errors.New("usage_already_returned")
)
