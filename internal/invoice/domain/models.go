// Package domain contains the invoice lifecycle model for periodic voyage billing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice is the stored result of reconciling a draft for one
// (customer, billing period) key.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceNumber string          `gorm:"type:text;not null;uniqueIndex:ux_invoice_number" json:"invoice_number"`
	CustomerCode  string          `gorm:"type:text;not null;index" json:"customer_code"`
	YearMonth     string          `gorm:"type:text;not null" json:"year_month"`
	CutoffLabel   string          `gorm:"type:text;not null" json:"cutoff"`
	PeriodStart   time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time       `gorm:"not null" json:"period_end"`
	Currency      string          `gorm:"type:text;not null" json:"currency"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	VatAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"vat_amount"`
	GrandTotal    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"grand_total"`
	Status        Status          `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	Checksum      string          `gorm:"type:text;not null" json:"checksum"`
	Version       int64           `gorm:"not null;default:1" json:"version"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`

	Lines []InvoiceLine `gorm:"-" json:"lines"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is one aggregated service code on an invoice.
type InvoiceLine struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID      snowflake.ID    `gorm:"not null;index" json:"-"`
	Position       int             `gorm:"not null" json:"position"`
	ServiceCode    string          `gorm:"type:text;not null" json:"service_code"`
	Description    string          `gorm:"type:text;not null" json:"description"`
	Quantity       int64           `gorm:"not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(30,10);not null" json:"unit_price"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	VatCode        string          `gorm:"type:text;not null" json:"vat_code"`
	VatRate        decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"vat_rate"`
	TariffCurrency string          `gorm:"type:text;not null" json:"tariff_currency"`
	ExchangeRate   decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"exchange_rate"`
	RateDate       time.Time       `gorm:"not null" json:"rate_date"`
	RateIsFallback bool            `gorm:"not null;default:false" json:"rate_is_fallback"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

type ConflictStatus string

const (
	ConflictStatusOpen     ConflictStatus = "OPEN"
	ConflictStatusResolved ConflictStatus = "RESOLVED"
)

// InvoiceConflict records a draft rejected because its invoice was locked.
type InvoiceConflict struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID       snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	InvoiceNumber   string            `gorm:"type:text;not null;index" json:"invoice_number"`
	CustomerCode    string            `gorm:"type:text;not null" json:"customer_code"`
	InvoiceStatus   Status            `gorm:"type:text;not null" json:"invoice_status"`
	InvoiceChecksum string            `gorm:"type:text;not null" json:"invoice_checksum"`
	DraftChecksum   string            `gorm:"type:text;not null" json:"draft_checksum"`
	Draft           datatypes.JSONMap `gorm:"type:jsonb;not null" json:"draft"`
	Status          ConflictStatus    `gorm:"type:text;not null;default:'OPEN';index" json:"status"`
	ResolutionNote  string            `gorm:"type:text;not null;default:''" json:"resolution_note,omitempty"`
	ResolvedBy      string            `gorm:"type:text;not null;default:''" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceConflict) TableName() string { return "invoice_conflicts" }
