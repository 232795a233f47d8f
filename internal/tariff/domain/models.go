// Package domain defines port service tariffs and their vessel assignments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Tariff is one price version of a service code. ValidFrom is a calendar date.
type Tariff struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	ServiceCode string          `gorm:"type:text;not null;index:idx_tariff_service_valid,priority:1" json:"service_code"`
	Description string          `gorm:"type:text;not null" json:"description"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"unit_price"`
	Currency    string          `gorm:"type:text;not null" json:"currency"`
	VatCode     string          `gorm:"type:text;not null" json:"vat_code"`
	ValidFrom   time.Time       `gorm:"not null;index:idx_tariff_service_valid,priority:2" json:"valid_from"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Tariff) TableName() string { return "tariffs" }

// TariffAssignment maps a vessel and service type to a service code.
// An empty VesselCode is the default for the service type.
type TariffAssignment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	VesselCode  string       `gorm:"type:text;not null;default:'';uniqueIndex:ux_tariff_assignment,priority:1" json:"vessel_code"`
	ServiceType string       `gorm:"type:text;not null;uniqueIndex:ux_tariff_assignment,priority:2" json:"service_type"`
	ServiceCode string       `gorm:"type:text;not null" json:"service_code"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (TariffAssignment) TableName() string { return "tariff_assignments" }

// Quote is a point-in-time tariff with its VAT rate resolved.
type Quote struct {
	TariffID    snowflake.ID    `json:"tariff_id"`
	ServiceCode string          `json:"service_code"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency"`
	VatCode     string          `json:"vat_code"`
	VatRate     decimal.Decimal `json:"vat_rate"`
	ValidFrom   time.Time       `json:"valid_from"`
}
