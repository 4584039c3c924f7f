package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/pkg/money"
	"gorm.io/datatypes"
)

// Invoice statuses. Approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Invoice is one supplier shipment document. The subtotal is always
// derived from the line items, never stored.
type Invoice struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Reference   string       `gorm:"uniqueIndex;not null" json:"reference"`
	Supplier    string       `gorm:"not null" json:"supplier"`
	InvoiceDate *time.Time   `json:"invoice_date,omitempty"`

	ShippingCost money.Cents `gorm:"not null;default:0" json:"shipping_cost"`
	Discount     money.Cents `gorm:"not null;default:0" json:"discount"`
	CardFees     money.Cents `gorm:"not null;default:0" json:"card_fees"`
	Tax          money.Cents `gorm:"not null;default:0" json:"tax"`
	OtherFees    money.Cents `gorm:"not null;default:0" json:"other_fees"`

	Status string `gorm:"not null;default:pending;index" json:"status"`

	// RawPayload keeps the parsed supplier document for audit.
	RawPayload datatypes.JSON `json:"raw_payload,omitempty"`

	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "supplier_invoices"
}

// LineItem is one parsed invoice row. Mutable only while the owning
// invoice is pending.
type LineItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Position  int          `gorm:"not null" json:"position"`

	Description string        `gorm:"not null" json:"description"`
	ProductID   *snowflake.ID `gorm:"index" json:"product_id,omitempty"`
	Quantity    int           `gorm:"not null" json:"quantity"`
	UnitCost    money.Cents   `gorm:"not null" json:"unit_cost"`

	// TotalCost is unit_cost times quantity, stored redundantly so the
	// record can be audited against the original document.
	TotalCost money.Cents `gorm:"not null" json:"total_cost"`

	// AllocatedUnitCost stays nil until the allocation engine runs.
	AllocatedUnitCost *money.Cents `json:"allocated_unit_cost,omitempty"`

	// Extraction hints assist operator matching; never authoritative.
	BrandHint string `json:"brand_hint,omitempty"`
	ModelHint string `json:"model_hint,omitempty"`
	ColorHint string `json:"color_hint,omitempty"`
	SizeHint  string `json:"size_hint,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (LineItem) TableName() string {
	return "invoice_line_items"
}

// Subtotal derives the goods-only total from line items.
func Subtotal(items []LineItem) money.Cents {
	var sum money.Cents
	for _, item := range items {
		sum += item.TotalCost
	}
	return sum
}
