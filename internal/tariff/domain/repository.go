package domain

import (
	"context"
	"time"
)

type Repository interface {
	// FindAssignment prefers the vessel-specific row and falls back to the default row.
	FindAssignment(ctx context.Context, vesselCode, serviceType string) (*TariffAssignment, error)
	SaveAssignment(ctx context.Context, assignment *TariffAssignment) error
	// FindEffective returns the latest version with ValidFrom <= asOf.
	FindEffective(ctx context.Context, serviceCode string, asOf time.Time) (*Tariff, error)
	InsertTariff(ctx context.Context, tariff *Tariff) error
	ListTariffs(ctx context.Context, serviceCode string) ([]Tariff, error)
}
