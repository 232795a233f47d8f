package domain

import "errors"

var (
	ErrInvoiceNotFound           = errors.New("invoice_not_found")
	ErrInvalidInvoiceID          = errors.New("invalid_invoice_id")
	ErrInvalidInvoiceNumber      = errors.New("invalid_invoice_number")
	ErrInvalidStatus             = errors.New("invalid_status")
	ErrInvalidTransition         = errors.New("invalid_transition")
	ErrLockedInvoiceConflict     = errors.New("locked_invoice_conflict")
	ErrConcurrentModification    = errors.New("concurrent_modification")
	ErrNoBillableLines           = errors.New("no_billable_lines")
	ErrInvalidDraft              = errors.New("invalid_draft")
	ErrCurrencyMismatch          = errors.New("currency_mismatch")
	ErrConflictNotFound          = errors.New("invoice_conflict_not_found")
	ErrConflictAlreadyResolved   = errors.New("invoice_conflict_already_resolved")
	ErrInvalidConflictResolution = errors.New("invalid_conflict_resolution")
	ErrInvoiceNumberCollision    = errors.New("invoice_number_collision")
)
