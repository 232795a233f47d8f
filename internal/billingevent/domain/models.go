// Package domain defines the transactional outbox for billing notifications.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent is one outbox row written in the same transaction as the
// state change it announces.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventType   string            `gorm:"type:text;not null;index" json:"event_type"`
	EventKey    string            `gorm:"type:text;not null" json:"event_key"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null" json:"payload"`
	DedupeKey   string            `gorm:"type:text;not null;uniqueIndex:ux_billing_event_dedupe" json:"dedupe_key"`
	Published   bool              `gorm:"not null;default:false;index" json:"published"`
	Attempts    int               `gorm:"not null;default:0" json:"attempts"`
	LastError   string            `gorm:"type:text;not null;default:''" json:"last_error,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }
