package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*usagedomain.UsageRecord, error) {
	var records []usagedomain.UsageRecord
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// MarkReturned flips a DEPARTED record to RETURNED. It reports false when the
// record was not in DEPARTED state.
func (r *repo) MarkReturned(ctx context.Context, db *gorm.DB, id snowflake.ID, returnAt, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET status = ?, return_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		usagedomain.UsageStatusReturned,
		returnAt.UTC(),
		updatedAt.UTC(),
		id,
		usagedomain.UsageStatusDeparted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListReturned(ctx context.Context, db *gorm.DB, customerCode string, from, to time.Time) ([]usagedomain.UsageRecord, error) {
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).
		Where("customer_code = ? AND status = ? AND return_at IS NOT NULL AND return_at >= ? AND return_at < ?",
			customerCode, usagedomain.UsageStatusReturned, from.UTC(), to.UTC()).
		Order("return_at ASC").
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListCustomersWithReturned(ctx context.Context, db *gorm.DB, from, to time.Time) ([]string, error) {
	var customers []string
	err := db.WithContext(ctx).
		Model(&usagedomain.UsageRecord{}).
		Distinct("customer_code").
		Where("status = ? AND return_at IS NOT NULL AND return_at >= ? AND return_at < ?",
			usagedomain.UsageStatusReturned, from.UTC(), to.UTC()).
		Order("customer_code ASC").
		Pluck("customer_code", &customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}
