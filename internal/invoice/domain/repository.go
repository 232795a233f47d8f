package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusUpdate moves one invoice from From to To if its version still matches.
type StatusUpdate struct {
	ID              snowflake.ID
	From            Status
	To              Status
	ExpectedVersion int64
	At              time.Time
}

type ListFilter struct {
	Status       Status
	CustomerCode string
	AfterID      snowflake.ID
	Limit        int
}

type Repository interface {
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	CountLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	// Insert writes the invoice and its lines.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// ReplaceContent overwrites totals and lines of a PENDING invoice at
	// expectedVersion and bumps the version. It reports false on a lost race.
	ReplaceContent(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)

	InsertConflict(ctx context.Context, db *gorm.DB, conflict *InvoiceConflict) error
	FindOpenConflict(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, draftChecksum string) (*InvoiceConflict, error)
	FindConflict(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InvoiceConflict, error)
	ListConflicts(ctx context.Context, db *gorm.DB, status ConflictStatus) ([]InvoiceConflict, error)
	ResolveConflict(ctx context.Context, db *gorm.DB, id snowflake.ID, note, resolvedBy string, at time.Time) (bool, error)
}
