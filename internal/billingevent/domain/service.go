package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the dedupe key already exists.
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) (bool, error)
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]BillingEvent, error)
	MarkPublished(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}

// Outbox enqueues events inside the caller's transaction.
type Outbox interface {
	Enqueue(ctx context.Context, tx *gorm.DB, event Event) error
}

// Publisher delivers one outbox event downstream.
type Publisher interface {
	Publish(ctx context.Context, event BillingEvent) error
	Close() error
}

type RelayResult struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Relay moves pending outbox rows to the publisher.
type Relay interface {
	RelayOnce(ctx context.Context, limit int) (RelayResult, error)
}

var (
	ErrInvalidEvent = errors.New("invalid_billing_event")
)
