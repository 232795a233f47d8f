package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Turkish KDV codes seeded by the initial migration.
const (
	VatCodeStandard = "KDV20"
	VatCodeReduced  = "KDV10"
	VatCodeLow      = "KDV1"
	VatCodeExempt   = "KDV0"
)

// VatCode is a VAT rate referenced by tariffs. RatePercent is 20 for 20%.
type VatCode struct {
	Code        string          `gorm:"primaryKey;type:text" json:"code"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	RatePercent decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"rate_percent"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (VatCode) TableName() string { return "vat_codes" }
