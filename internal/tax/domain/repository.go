package domain

import "context"

type Repository interface {
	FindByCode(ctx context.Context, code string) (*VatCode, error)
	List(ctx context.Context) ([]VatCode, error)
	Save(ctx context.Context, vat *VatCode) error
}
