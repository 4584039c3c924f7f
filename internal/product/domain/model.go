package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/pkg/money"
	"gorm.io/datatypes"
)

// Product is a catalog entry: one bike model in one color and size.
// Individual physical bikes are inventory units referencing a product.
type Product struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Brand            string            `gorm:"not null" json:"brand"`
	Model            string            `gorm:"not null" json:"model"`
	SKU              string            `gorm:"uniqueIndex;not null" json:"sku"`
	Category         string            `json:"category,omitempty"`
	Color            string            `json:"color,omitempty"`
	Size             string            `json:"size,omitempty"`
	ListPrice        money.Cents       `gorm:"not null;default:0" json:"list_price"`
	ShopifyProductID string            `gorm:"column:shopify_product_id" json:"shopify_product_id,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
