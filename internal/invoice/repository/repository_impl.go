package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, "invoice_number = ?", number)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	if err := db.WithContext(ctx).Where(query, arg).Limit(1).Find(&invoices).Error; err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLine, error) {
	var lines []invoicedomain.InvoiceLine
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("position ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) CountLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&invoicedomain.InvoiceLine{}).
		Where("invoice_id = ?", invoiceID).
		Count(&count).Error
	return count, err
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	if err := db.WithContext(ctx).Create(invoice).Error; err != nil {
		return err
	}
	return r.insertLines(ctx, db, invoice.Lines)
}

func (r *repo) ReplaceContent(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET currency = ?, subtotal = ?, vat_amount = ?, grand_total = ?,
		     checksum = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND status = ?`,
		invoice.Currency,
		invoice.Subtotal,
		invoice.VatAmount,
		invoice.GrandTotal,
		invoice.Checksum,
		invoice.UpdatedAt.UTC(),
		invoice.ID,
		expectedVersion,
		invoicedomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}

	if err := db.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Delete(&invoicedomain.InvoiceLine{}).Error; err != nil {
		return false, err
	}
	if err := r.insertLines(ctx, db, invoice.Lines); err != nil {
		return false, err
	}
	invoice.Version = expectedVersion + 1
	return true, nil
}

func (r *repo) insertLines(ctx context.Context, db *gorm.DB, lines []invoicedomain.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(lines, 200).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, update invoicedomain.StatusUpdate) (bool, error) {
	column, err := statusTimestampColumn(update.To)
	if err != nil {
		return false, err
	}

	res := db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE invoices
		 SET status = ?, %s = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND version = ?`, column),
		update.To,
		update.At.UTC(),
		update.At.UTC(),
		update.ID,
		update.From,
		update.ExpectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func statusTimestampColumn(status invoicedomain.Status) (string, error) {
	switch status {
	case invoicedomain.StatusIssued:
		return "issued_at", nil
	case invoicedomain.StatusSent:
		return "sent_at", nil
	case invoicedomain.StatusPaid:
		return "paid_at", nil
	case invoicedomain.StatusCancelled:
		return "cancelled_at", nil
	default:
		return "", invoicedomain.ErrInvalidTransition
	}
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListFilter) ([]*invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerCode != "" {
		stmt = stmt.Where("customer_code = ?", filter.CustomerCode)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var invoices []*invoicedomain.Invoice
	if err := stmt.Order("id ASC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) InsertConflict(ctx context.Context, db *gorm.DB, conflict *invoicedomain.InvoiceConflict) error {
	return db.WithContext(ctx).Create(conflict).Error
}

func (r *repo) FindOpenConflict(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, draftChecksum string) (*invoicedomain.InvoiceConflict, error) {
	var conflicts []invoicedomain.InvoiceConflict
	err := db.WithContext(ctx).
		Where("invoice_id = ? AND draft_checksum = ? AND status = ?", invoiceID, draftChecksum, invoicedomain.ConflictStatusOpen).
		Limit(1).
		Find(&conflicts).Error
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, nil
	}
	return &conflicts[0], nil
}

func (r *repo) FindConflict(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.InvoiceConflict, error) {
	var conflicts []invoicedomain.InvoiceConflict
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&conflicts).Error; err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, nil
	}
	return &conflicts[0], nil
}

func (r *repo) ListConflicts(ctx context.Context, db *gorm.DB, status invoicedomain.ConflictStatus) ([]invoicedomain.InvoiceConflict, error) {
	stmt := db.WithContext(ctx).Model(&invoicedomain.InvoiceConflict{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	var conflicts []invoicedomain.InvoiceConflict
	if err := stmt.Order("created_at ASC").Order("id ASC").Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (r *repo) ResolveConflict(ctx context.Context, db *gorm.DB, id snowflake.ID, note, resolvedBy string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoice_conflicts
		 SET status = ?, resolution_note = ?, resolved_by = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.ConflictStatusResolved,
		note,
		resolvedBy,
		at.UTC(),
		id,
		invoicedomain.ConflictStatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
