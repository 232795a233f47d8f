package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventTypeInvoiceIssued        = "invoice.issued"
	EventTypeInvoiceStatusChanged = "invoice.status_changed"
)

// Event is what producers hand to the outbox.
type Event struct {
	Type string
	// Key orders delivery, e.g. the invoice number.
	Key       string
	DedupeKey string
	Payload   map[string]any
}

// InvoiceIssued notifies the invoice-delivery collaborator.
type InvoiceIssued struct {
	InvoiceNumber string
	CustomerCode  string
	GrandTotal    decimal.Decimal
	Currency      string
	IssuedAt      time.Time
}

func (e InvoiceIssued) Event() Event {
	return Event{
		Type:      EventTypeInvoiceIssued,
		Key:       e.InvoiceNumber,
		DedupeKey: EventTypeInvoiceIssued + ":" + e.InvoiceNumber,
		Payload: map[string]any{
			"invoice_number": e.InvoiceNumber,
			"customer_code":  e.CustomerCode,
			"grand_total":    e.GrandTotal.StringFixed(2),
			"currency":       e.Currency,
			"issued_at":      e.IssuedAt.UTC().Format(time.RFC3339),
		},
	}
}

type InvoiceStatusChanged struct {
	InvoiceNumber string
	CustomerCode  string
	From          string
	To            string
	ChangedAt     time.Time
}

func (e InvoiceStatusChanged) Event() Event {
	return Event{
		Type:      EventTypeInvoiceStatusChanged,
		Key:       e.InvoiceNumber,
		DedupeKey: EventTypeInvoiceStatusChanged + ":" + e.InvoiceNumber + ":" + e.To,
		Payload: map[string]any{
			"invoice_number": e.InvoiceNumber,
			"customer_code":  e.CustomerCode,
			"from":           e.From,
			"to":             e.To,
			"changed_at":     e.ChangedAt.UTC().Format(time.RFC3339),
		},
	}
}
