package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/pkg/money"
)

// Unit lifecycle statuses.
const (
	StatusInTransit = "in_transit"
	StatusAvailable = "available"
	StatusSold      = "sold"
	StatusReturned  = "returned"
	StatusDamaged   = "damaged"
)

// Shopify sync states for a unit.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// InventoryUnit is one physical serialized bike. Every unit carries its
// own serial number and landed cost; Shopify sees it as a one-quantity
// variant whose SKU is the serial.
type InventoryUnit struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	Serial     string        `gorm:"uniqueIndex;not null" json:"serial"`
	ProductID  snowflake.ID  `gorm:"not null;index" json:"product_id"`
	InvoiceID  *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	LineItemID *snowflake.ID `json:"line_item_id,omitempty"`
	Status     string        `gorm:"not null;index" json:"status"`

	// ActualCost is the landed per-unit cost after shipping and fee
	// allocation. SalePrice is captured from the order webhook.
	ActualCost money.Cents `gorm:"not null;default:0" json:"actual_cost"`
	SalePrice  money.Cents `gorm:"not null;default:0" json:"sale_price"`

	SoldOrderID            string `json:"sold_order_id,omitempty"`
	ShopifyVariantID       string `gorm:"column:shopify_variant_id" json:"shopify_variant_id,omitempty"`
	ShopifyInventoryItemID string `gorm:"column:shopify_inventory_item_id" json:"shopify_inventory_item_id,omitempty"`

	SyncStatus   string `gorm:"not null;default:pending;index" json:"sync_status"`
	SyncError    string `json:"sync_error,omitempty"`
	SyncAttempts int    `gorm:"not null;default:0" json:"sync_attempts"`

	ReceivedAt *time.Time `json:"received_at,omitempty"`
	SoldAt     *time.Time `json:"sold_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (InventoryUnit) TableName() string {
	return "inventory_units"
}

var validTransitions = map[string]map[string]bool{
	StatusInTransit: {StatusAvailable: true, StatusDamaged: true},
	StatusAvailable: {StatusSold: true, StatusDamaged: true},
	StatusSold:      {StatusReturned: true},
	StatusReturned:  {StatusAvailable: true},
	StatusDamaged:   {StatusAvailable: true},
}

// CanTransition reports whether moving a unit from one status to
// another is a legal lifecycle step.
func CanTransition(from, to string) bool {
	return validTransitions[from][to]
}

// IsStatus reports whether value names a known unit status.
func IsStatus(value string) bool {
	switch value {
	case StatusInTransit, StatusAvailable, StatusSold, StatusReturned, StatusDamaged:
		return true
	default:
		return false
	}
}
