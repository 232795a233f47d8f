package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads and writes usage records. Ranges are half-open [from, to).
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UsageRecord, error)
	MarkReturned(ctx context.Context, db *gorm.DB, id snowflake.ID, returnAt, updatedAt time.Time) (bool, error)
	ListReturned(ctx context.Context, db *gorm.DB, customerCode string, from, to time.Time) ([]UsageRecord, error)
	ListCustomersWithReturned(ctx context.Context, db *gorm.DB, from, to time.Time) ([]string, error)
}
