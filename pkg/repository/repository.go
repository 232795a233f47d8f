package repository

import (
	"context"

	"github.com/smallbiznis/portbilling/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic GORM-backed store for reference data tables.
// A missing row is (nil, nil) from FindOne.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// Upsert inserts resource or, on a conflict over conflictColumns,
	// overwrites updateColumns.
	Upsert(ctx context.Context, resource *T, conflictColumns, updateColumns []string) error
}
