package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Resolver returns VAT codes for pricing. Results may be cached.
type Resolver interface {
	Resolve(ctx context.Context, code string) (VatCode, error)
}

type UpsertRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*VatCode, error)
	List(ctx context.Context) ([]VatCode, error)
}
