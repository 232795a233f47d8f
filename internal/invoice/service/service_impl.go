package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"github.com/smallbiznis/portbilling/internal/clock"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"github.com/smallbiznis/portbilling/internal/keylock"
	obsctx "github.com/smallbiznis/portbilling/internal/observability/context"
	"github.com/smallbiznis/portbilling/internal/observability/logger"
	"github.com/smallbiznis/portbilling/internal/observability/metrics"
	"github.com/smallbiznis/portbilling/internal/observability/tracing"
	"github.com/smallbiznis/portbilling/pkg/db"
	"github.com/smallbiznis/portbilling/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const lockKeyPrefix = "invoice:"

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           invoicedomain.Repository
	Locker         keylock.Locker
	Outbox         billingeventdomain.Outbox
	Metrics        *metrics.Metrics        `optional:"true"`
	BillingMetrics *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           invoicedomain.Repository
	locker         keylock.Locker
	outbox         billingeventdomain.Outbox
	metrics        *metrics.Metrics
	billingMetrics *metrics.BillingMetrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("invoice.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		locker:         p.Locker,
		outbox:         p.Outbox,
		metrics:        p.Metrics,
		billingMetrics: p.BillingMetrics,
	}
}

// Reconcile creates or regenerates the PENDING invoice for the draft's key.
// Locked invoices are never rewritten and always yield ErrLockedInvoiceConflict;
// a differing draft is also recorded as a conflict for operator review.
func (s *Service) Reconcile(ctx context.Context, draft invoicedomain.Draft) (invoicedomain.ReconcileResult, error) {
	if err := draft.Validate(); err != nil {
		return invoicedomain.ReconcileResult{}, err
	}
	number, err := draft.InvoiceNumber()
	if err != nil {
		return invoicedomain.ReconcileResult{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "invoice.reconcile",
		attribute.String("invoice_number", number),
		attribute.String("customer_code", draft.CustomerCode),
		attribute.String("period", draft.Period.Key()),
	)
	defer span.End()

	release, err := s.acquire(ctx, number)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return invoicedomain.ReconcileResult{}, err
	}
	defer release()

	checksum := draft.Checksum()
	now := s.clock.Now().UTC()

	var result invoicedomain.ReconcileResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByNumber(ctx, tx, number)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			invoice := s.newInvoice(number, draft, checksum, now)
			if err := s.repo.Insert(ctx, tx, invoice); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return fmt.Errorf("%w: %s created concurrently", invoicedomain.ErrConcurrentModification, number)
				}
				return err
			}
			result = invoicedomain.ReconcileResult{Outcome: invoicedomain.OutcomeCreated, Invoice: invoice}
			return nil

		case !strings.EqualFold(existing.CustomerCode, draft.CustomerCode):
			return fmt.Errorf("%w: %s belongs to %s", invoicedomain.ErrInvoiceNumberCollision, number, existing.CustomerCode)

		case existing.Status.Locked():
			result = invoicedomain.ReconcileResult{Outcome: invoicedomain.OutcomeConflict, Invoice: existing}
			// an identical rerun against a locked invoice has nothing to review
			if existing.Checksum == checksum {
				return nil
			}
			conflict, err := s.recordConflict(ctx, tx, existing, draft, checksum, now)
			if err != nil {
				return err
			}
			result.Conflict = conflict
			return nil

		case existing.Checksum == checksum:
			lines, err := s.repo.ListLines(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			existing.Lines = lines
			result = invoicedomain.ReconcileResult{Outcome: invoicedomain.OutcomeUnchanged, Invoice: existing}
			return nil

		default:
			replacement := *existing
			replacement.Currency = draft.Currency
			replacement.Subtotal = draft.Subtotal
			replacement.VatAmount = draft.VatAmount
			replacement.GrandTotal = draft.GrandTotal
			replacement.Checksum = checksum
			replacement.UpdatedAt = now
			replacement.Lines = s.buildLines(existing.ID, draft, now)

			ok, err := s.repo.ReplaceContent(ctx, tx, &replacement, existing.Version)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s changed during regeneration", invoicedomain.ErrConcurrentModification, number)
			}
			result = invoicedomain.ReconcileResult{Outcome: invoicedomain.OutcomeRegenerated, Invoice: &replacement}
			return nil
		}
	})
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "reconcile")
		return invoicedomain.ReconcileResult{}, err
	}

	s.observeReconcile(ctx, result, draft)
	if result.Outcome == invoicedomain.OutcomeConflict {
		return result, fmt.Errorf("%w: %s is %s", invoicedomain.ErrLockedInvoiceConflict, number, result.Invoice.Status)
	}
	return result, nil
}

func (s *Service) newInvoice(number string, draft invoicedomain.Draft, checksum string, now time.Time) *invoicedomain.Invoice {
	id := s.genID.Generate()
	return &invoicedomain.Invoice{
		ID:            id,
		InvoiceNumber: number,
		CustomerCode:  draft.CustomerCode,
		YearMonth:     draft.Period.YearMonth,
		CutoffLabel:   draft.Period.CutoffLabel(),
		PeriodStart:   draft.Period.StartDate,
		PeriodEnd:     draft.Period.EndDate,
		Currency:      draft.Currency,
		Subtotal:      draft.Subtotal,
		VatAmount:     draft.VatAmount,
		GrandTotal:    draft.GrandTotal,
		Status:        invoicedomain.StatusPending,
		Checksum:      checksum,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Lines:         s.buildLines(id, draft, now),
	}
}

func (s *Service) buildLines(invoiceID snowflake.ID, draft invoicedomain.Draft, now time.Time) []invoicedomain.InvoiceLine {
	lines := make([]invoicedomain.InvoiceLine, 0, len(draft.Lines))
	for i, line := range draft.Lines {
		lines = append(lines, invoicedomain.InvoiceLine{
			ID:             s.genID.Generate(),
			InvoiceID:      invoiceID,
			Position:       i + 1,
			ServiceCode:    line.ServiceCode,
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			Amount:         line.Amount,
			VatCode:        line.VatCode,
			VatRate:        line.VatRate,
			TariffCurrency: line.TariffCurrency,
			ExchangeRate:   line.ExchangeRate,
			RateDate:       line.RateDate,
			RateIsFallback: line.RateIsFallback,
			CreatedAt:      now,
		})
	}
	return lines
}

func (s *Service) recordConflict(ctx context.Context, tx *gorm.DB, existing *invoicedomain.Invoice, draft invoicedomain.Draft, checksum string, now time.Time) (*invoicedomain.InvoiceConflict, error) {
	open, err := s.repo.FindOpenConflict(ctx, tx, existing.ID, checksum)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return open, nil
	}

	conflict := &invoicedomain.InvoiceConflict{
		ID:              s.genID.Generate(),
		InvoiceID:       existing.ID,
		InvoiceNumber:   existing.InvoiceNumber,
		CustomerCode:    existing.CustomerCode,
		InvoiceStatus:   existing.Status,
		InvoiceChecksum: existing.Checksum,
		DraftChecksum:   checksum,
		Draft:           datatypes.JSONMap(draft.Snapshot()),
		Status:          invoicedomain.ConflictStatusOpen,
		CreatedAt:       now,
	}
	if err := s.repo.InsertConflict(ctx, tx, conflict); err != nil {
		return nil, err
	}
	return conflict, nil
}

func (s *Service) observeReconcile(ctx context.Context, result invoicedomain.ReconcileResult, draft invoicedomain.Draft) {
	if s.billingMetrics != nil {
		s.billingMetrics.IncReconcile(string(result.Outcome))
	}
	if result.Outcome == invoicedomain.OutcomeCreated || result.Outcome == invoicedomain.OutcomeRegenerated {
		s.metrics.RecordLinesRated(ctx, len(draft.Lines))
	}

	log := logger.WithContext(ctx, s.log)
	fields := []zap.Field{
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("customer_code", draft.CustomerCode),
		zap.String("period", draft.Period.Key()),
		zap.String("grand_total", draft.GrandTotal.StringFixed(2)),
		zap.String("currency", draft.Currency),
	}
	switch result.Outcome {
	case invoicedomain.OutcomeCreated:
		log.Info("invoice.created", fields...)
	case invoicedomain.OutcomeRegenerated:
		log.Info("invoice.regenerated", append(fields, zap.Int64("version", result.Invoice.Version))...)
	case invoicedomain.OutcomeUnchanged:
		log.Debug("invoice.unchanged", fields...)
	case invoicedomain.OutcomeConflict:
		fields = append(fields,
			zap.String("status", string(result.Invoice.Status)),
			zap.String("stored_grand_total", result.Invoice.GrandTotal.StringFixed(2)),
		)
		if result.Conflict == nil {
			log.Debug("invoice.locked_unchanged", fields...)
			return
		}
		log.Warn("invoice.conflict", append(fields, zap.String("conflict_id", result.Conflict.ID.String()))...)
	}
}

// Issue locks a PENDING invoice and enqueues InvoiceIssued in the same transaction.
func (s *Service) Issue(ctx context.Context, ref string) (*invoicedomain.Invoice, error) {
	current, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, current.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now().UTC()
	var issued *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status != invoicedomain.StatusPending {
			return fmt.Errorf("%w: %s -> %s", invoicedomain.ErrInvalidTransition, invoice.Status, invoicedomain.StatusIssued)
		}

		lineCount, err := s.repo.CountLines(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if lineCount == 0 || !invoice.GrandTotal.IsPositive() {
			return invoicedomain.ErrNoBillableLines
		}

		ok, err := s.repo.UpdateStatus(ctx, tx, invoicedomain.StatusUpdate{
			ID:              invoice.ID,
			From:            invoicedomain.StatusPending,
			To:              invoicedomain.StatusIssued,
			ExpectedVersion: invoice.Version,
			At:              now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrConcurrentModification
		}

		event := billingeventdomain.InvoiceIssued{
			InvoiceNumber: invoice.InvoiceNumber,
			CustomerCode:  invoice.CustomerCode,
			GrandTotal:    invoice.GrandTotal,
			Currency:      invoice.Currency,
			IssuedAt:      now,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.Event()); err != nil {
			return err
		}

		invoice.Status = invoicedomain.StatusIssued
		invoice.IssuedAt = &now
		invoice.Version++
		invoice.UpdatedAt = now
		issued = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceIssued(ctx, issued.Currency)
	logger.WithContext(ctx, s.log).Info("invoice.issued",
		zap.String("invoice_number", issued.InvoiceNumber),
		zap.String("customer_code", issued.CustomerCode),
		zap.String("grand_total", issued.GrandTotal.StringFixed(2)),
		zap.String("currency", issued.Currency),
	)
	return s.withLines(ctx, issued)
}

// Advance applies a downstream or operator transition. Issuing goes through Issue.
func (s *Service) Advance(ctx context.Context, ref string, to invoicedomain.Status) (*invoicedomain.Invoice, error) {
	if !to.Valid() {
		return nil, invoicedomain.ErrInvalidStatus
	}
	if to == invoicedomain.StatusIssued {
		return nil, fmt.Errorf("%w: use issue to move an invoice to %s", invoicedomain.ErrInvalidTransition, to)
	}

	current, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, current.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now().UTC()
	var updated *invoicedomain.Invoice
	var from invoicedomain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		from = invoice.Status
		if !invoicedomain.CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", invoicedomain.ErrInvalidTransition, from, to)
		}

		ok, err := s.repo.UpdateStatus(ctx, tx, invoicedomain.StatusUpdate{
			ID:              invoice.ID,
			From:            from,
			To:              to,
			ExpectedVersion: invoice.Version,
			At:              now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrConcurrentModification
		}

		event := billingeventdomain.InvoiceStatusChanged{
			InvoiceNumber: invoice.InvoiceNumber,
			CustomerCode:  invoice.CustomerCode,
			From:          string(from),
			To:            string(to),
			ChangedAt:     now,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.Event()); err != nil {
			return err
		}

		invoice.Status = to
		stampStatus(invoice, to, now)
		invoice.Version++
		invoice.UpdatedAt = now
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("invoice.status_changed",
		zap.String("invoice_number", updated.InvoiceNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return s.withLines(ctx, updated)
}

func stampStatus(invoice *invoicedomain.Invoice, status invoicedomain.Status, at time.Time) {
	switch status {
	case invoicedomain.StatusIssued:
		invoice.IssuedAt = &at
	case invoicedomain.StatusSent:
		invoice.SentAt = &at
	case invoicedomain.StatusPaid:
		invoice.PaidAt = &at
	case invoicedomain.StatusCancelled:
		invoice.CancelledAt = &at
	}
}

func (s *Service) Get(ctx context.Context, ref string) (*invoicedomain.Invoice, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	var (
		invoice *invoicedomain.Invoice
		err     error
	)
	if id, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		invoice, err = s.repo.FindByID(ctx, s.db, snowflake.ID(id))
	} else {
		invoice, err = s.repo.FindByNumber(ctx, s.db, strings.ToUpper(ref))
	}
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.withLines(ctx, invoice)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*invoicedomain.Invoice, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, invoicedomain.ErrInvalidInvoiceNumber
	}
	invoice, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.withLines(ctx, invoice)
}

func (s *Service) withLines(ctx context.Context, invoice *invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	lines, err := s.repo.ListLines(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Lines = lines
	return invoice, nil
}

func (s *Service) ListByStatus(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := invoicedomain.ListFilter{
		CustomerCode: strings.ToUpper(strings.TrimSpace(req.CustomerCode)),
		Limit:        req.Limit() + 1,
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := invoicedomain.ParseStatus(req.Status)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		filter.Status = status
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidInvoiceID
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidInvoiceID
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	page, info := pagination.BuildCursorPageInfo(items, req.Limit(), func(inv *invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: inv.ID.String()}
	})
	invoices := make([]invoicedomain.Invoice, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) ListConflicts(ctx context.Context, status string) ([]invoicedomain.InvoiceConflict, error) {
	filter := invoicedomain.ConflictStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch filter {
	case "", invoicedomain.ConflictStatusOpen, invoicedomain.ConflictStatusResolved:
	default:
		return nil, invoicedomain.ErrInvalidStatus
	}
	return s.repo.ListConflicts(ctx, s.db, filter)
}

func (s *Service) ResolveConflict(ctx context.Context, id string, req invoicedomain.ResolveConflictRequest) (*invoicedomain.InvoiceConflict, error) {
	conflictID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, invoicedomain.ErrConflictNotFound
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, invoicedomain.ErrInvalidConflictResolution
	}
	resolvedBy := strings.TrimSpace(req.ResolvedBy)
	if resolvedBy == "" {
		_, actorID := obsctx.ActorFromContext(ctx)
		resolvedBy = actorID
	}

	now := s.clock.Now().UTC()
	ok, err := s.repo.ResolveConflict(ctx, s.db, conflictID, note, resolvedBy, now)
	if err != nil {
		return nil, err
	}

	conflict, err := s.repo.FindConflict(ctx, s.db, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, invoicedomain.ErrConflictNotFound
	}
	if !ok {
		return nil, invoicedomain.ErrConflictAlreadyResolved
	}

	logger.WithContext(ctx, s.log).Info("invoice.conflict_resolved",
		zap.String("conflict_id", conflict.ID.String()),
		zap.String("invoice_number", conflict.InvoiceNumber),
		zap.String("resolved_by", resolvedBy),
	)
	return conflict, nil
}

func (s *Service) acquire(ctx context.Context, number string) (keylock.Release, error) {
	start := time.Now()
	release, err := s.locker.Acquire(ctx, lockKeyPrefix+number)
	if s.billingMetrics != nil {
		s.billingMetrics.ObserveLockWait(time.Since(start))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s: %w", keylock.ErrLockBusy, number, err)
		}
		return nil, err
	}
	return release, nil
}
