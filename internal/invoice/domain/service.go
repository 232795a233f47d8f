package domain

import (
	"context"

	"github.com/smallbiznis/portbilling/pkg/db/pagination"
)

type ReconcileOutcome string

const (
	OutcomeCreated     ReconcileOutcome = "CREATED"
	OutcomeRegenerated ReconcileOutcome = "REGENERATED"
	OutcomeUnchanged   ReconcileOutcome = "UNCHANGED"
	OutcomeConflict    ReconcileOutcome = "CONFLICT"
)

type ReconcileResult struct {
	Outcome  ReconcileOutcome `json:"outcome"`
	Invoice  *Invoice         `json:"invoice,omitempty"`
	Conflict *InvoiceConflict `json:"conflict,omitempty"`
}

type ListInvoiceRequest struct {
	Status       string `form:"status"`
	CustomerCode string `form:"customer_code"`
	pagination.Pagination
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type ResolveConflictRequest struct {
	Note       string `json:"note"`
	ResolvedBy string `json:"-"`
}

// Service owns invoice identity and lifecycle. ref is either the numeric
// invoice id or the invoice number.
type Service interface {
	// Reconcile returns ErrLockedInvoiceConflict alongside a CONFLICT result.
	Reconcile(ctx context.Context, draft Draft) (ReconcileResult, error)
	Issue(ctx context.Context, ref string) (*Invoice, error)
	Advance(ctx context.Context, ref string, to Status) (*Invoice, error)
	Get(ctx context.Context, ref string) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	ListByStatus(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ListConflicts(ctx context.Context, status string) ([]InvoiceConflict, error)
	ResolveConflict(ctx context.Context, id string, req ResolveConflictRequest) (*InvoiceConflict, error)
}
