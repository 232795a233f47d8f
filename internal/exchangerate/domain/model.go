// Package domain defines published exchange rates and the fallback-date resolution result.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ExchangeRate is one published rate: 1 BaseCurrency = Rate QuoteCurrency on RateDate.
type ExchangeRate struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	BaseCurrency  string          `gorm:"type:text;not null;uniqueIndex:ux_exchange_rate_pair_date,priority:1" json:"base_currency"`
	QuoteCurrency string          `gorm:"type:text;not null;uniqueIndex:ux_exchange_rate_pair_date,priority:2" json:"quote_currency"`
	RateDate      time.Time       `gorm:"not null;uniqueIndex:ux_exchange_rate_pair_date,priority:3" json:"rate_date"`
	Rate          decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"rate"`
	Source        string          `gorm:"type:text;not null;default:''" json:"source"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (ExchangeRate) TableName() string { return "exchange_rates" }

// Resolution is the outcome of RateOn. ResolvedDate differs from RequestedDate
// only when IsFallback is true.
type Resolution struct {
	FromCurrency  string          `json:"from_currency"`
	ToCurrency    string          `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	RequestedDate time.Time       `json:"requested_date"`
	ResolvedDate  time.Time       `json:"resolved_date"`
	IsFallback    bool            `json:"is_fallback"`
	Inverted      bool            `json:"inverted"`
}

// Convert applies the rate to an amount in FromCurrency without rounding.
func (r Resolution) Convert(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.Rate)
}

// FallbackDays is the distance between the requested and the resolved date.
func (r Resolution) FallbackDays() int {
	return int(r.RequestedDate.Sub(r.ResolvedDate).Hours() / 24)
}
