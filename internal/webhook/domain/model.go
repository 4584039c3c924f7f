package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusProcessed = "processed"
	StatusPartial   = "partial"
	StatusError     = "error"
)

// WebhookLog records every accepted delivery, keyed by the delivery id
// Shopify sends. The unique index is what makes redelivery a no-op.
type WebhookLog struct {
	ID        snowflake.ID   `gorm:"column:id;primaryKey" json:"id,string"`
	WebhookID string         `gorm:"column:webhook_id;uniqueIndex" json:"webhook_id"`
	Topic     string         `gorm:"column:topic" json:"topic"`
	Status    string         `gorm:"column:status" json:"status"`
	Detail    datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}
