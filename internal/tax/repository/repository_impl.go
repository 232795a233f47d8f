package repository

import (
	"context"

	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	"github.com/smallbiznis/portbilling/pkg/db/option"
	"github.com/smallbiznis/portbilling/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[taxdomain.VatCode]
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repo{store: repository.ProvideStore[taxdomain.VatCode](db)}
}

func (r *repo) FindByCode(ctx context.Context, code string) (*taxdomain.VatCode, error) {
	return r.store.FindOne(ctx, &taxdomain.VatCode{Code: code})
}

func (r *repo) List(ctx context.Context) ([]taxdomain.VatCode, error) {
	return r.store.Find(ctx, &taxdomain.VatCode{}, option.WithOrder("code ASC"))
}

func (r *repo) Save(ctx context.Context, vat *taxdomain.VatCode) error {
	return r.store.Upsert(ctx, vat, []string{"code"}, []string{"name", "rate_percent", "updated_at"})
}
