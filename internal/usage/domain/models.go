// Package domain contains the voyage usage records consumed by invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UsageStatus tracks a voyage from departure to return.
type UsageStatus string

const (
	UsageStatusDeparted UsageStatus = "DEPARTED"
	UsageStatusReturned UsageStatus = "RETURNED"
)

// DefaultServiceType is used when voyage logging does not classify a record.
const DefaultServiceType = "VOYAGE"

// UsageRecord is one vessel voyage. Only RETURNED records are billable.
type UsageRecord struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	CustomerCode string          `gorm:"type:text;not null;index:idx_usage_customer_return,priority:1" json:"customer_code"`
	VesselCode   string          `gorm:"type:text;not null" json:"vessel_code"`
	ServiceType  string          `gorm:"type:text;not null;default:'VOYAGE'" json:"service_type"`
	Status       UsageStatus     `gorm:"type:text;not null" json:"status"`
	DepartureAt  time.Time       `gorm:"not null" json:"departure_at"`
	ReturnAt     *time.Time      `gorm:"index:idx_usage_customer_return,priority:2" json:"return_at,omitempty"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"unit_price"`
	Currency     string          `gorm:"type:text;not null" json:"currency"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Billable reports whether the record can be invoiced.
func (r UsageRecord) Billable() bool {
	return r.Status == UsageStatusReturned && r.ReturnAt != nil
}
