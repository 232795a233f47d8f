package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Resolver answers point-in-time tariff queries for rating.
type Resolver interface {
	ServiceCodeFor(ctx context.Context, vesselCode, serviceType string) (string, error)
	TariffAt(ctx context.Context, serviceCode string, asOf time.Time) (Quote, error)
}

type CreateTariffRequest struct {
	ServiceCode string          `json:"service_code"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency"`
	VatCode     string          `json:"vat_code"`
	ValidFrom   string          `json:"valid_from"`
}

type AssignRequest struct {
	VesselCode  string `json:"vessel_code"`
	ServiceType string `json:"service_type"`
	ServiceCode string `json:"service_code"`
}

type Service interface {
	CreateTariff(ctx context.Context, req CreateTariffRequest) (*Tariff, error)
	Assign(ctx context.Context, req AssignRequest) (*TariffAssignment, error)
	ListTariffs(ctx context.Context, serviceCode string) ([]Tariff, error)
}

var (
	ErrTariffNotFound     = errors.New("tariff_not_found")
	ErrInvalidServiceCode = errors.New("invalid_service_code")
	ErrInvalidServiceType = errors.New("invalid_service_type")
	ErrInvalidUnitPrice   = errors.New("invalid_unit_price")
	ErrInvalidValidFrom   = errors.New("invalid_valid_from")
	ErrInvalidVatCode     = errors.New("invalid_vat_code")
)
