package repository

import (
	"context"
	"time"

	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	"github.com/smallbiznis/portbilling/pkg/db/option"
	"github.com/smallbiznis/portbilling/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	rates repository.Repository[exchangeratedomain.ExchangeRate]
}

func NewRepository(db *gorm.DB) exchangeratedomain.Repository {
	return &repo{rates: repository.ProvideStore[exchangeratedomain.ExchangeRate](db)}
}

func (r *repo) FindOn(ctx context.Context, base, quote string, date time.Time) (*exchangeratedomain.ExchangeRate, error) {
	return r.rates.FindOne(ctx, &exchangeratedomain.ExchangeRate{
		BaseCurrency:  base,
		QuoteCurrency: quote,
	}, option.WithWhere("rate_date = ?", date.UTC()))
}

func (r *repo) Save(ctx context.Context, rate *exchangeratedomain.ExchangeRate) error {
	return r.rates.Upsert(ctx, rate,
		[]string{"base_currency", "quote_currency", "rate_date"},
		[]string{"rate", "source", "updated_at"},
	)
}

func (r *repo) List(ctx context.Context, base, quote string, from, to time.Time) ([]exchangeratedomain.ExchangeRate, error) {
	return r.rates.Find(ctx, &exchangeratedomain.ExchangeRate{
		BaseCurrency:  base,
		QuoteCurrency: quote,
	},
		option.WithWhere("rate_date >= ? AND rate_date <= ?", from.UTC(), to.UTC()),
		option.WithOrder("rate_date ASC"),
	)
}
