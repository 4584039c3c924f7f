package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/pkg/money"
)

type StatusSummary struct {
	Status    string      `json:"status"`
	Count     int64       `json:"count"`
	TotalCost money.Cents `json:"total_cost"`
}

type ProductSummary struct {
	ProductID snowflake.ID `json:"product_id,string"`
	Brand     string       `json:"brand"`
	Model     string       `json:"model"`
	SKU       string       `json:"sku"`
	Available int64        `json:"available"`
	InTransit int64        `json:"in_transit"`
	Sold      int64        `json:"sold"`
	TotalCost money.Cents  `json:"total_cost"`
}

type InventoryReport struct {
	ByStatus   []StatusSummary  `json:"by_status"`
	ByProduct  []ProductSummary `json:"by_product"`
	TotalUnits int64            `json:"total_units"`
	TotalCost  money.Cents      `json:"total_cost"`
}

type ProfitLine struct {
	Serial     string       `json:"serial"`
	ProductID  snowflake.ID `json:"product_id,string"`
	Brand      string       `json:"brand"`
	Model      string       `json:"model"`
	ActualCost money.Cents  `json:"actual_cost"`
	SalePrice  money.Cents  `json:"sale_price"`
	Profit     money.Cents  `json:"profit"`
	OrderID    string       `json:"order_id,omitempty"`
	SoldAt     *time.Time   `json:"sold_at,omitempty"`
}

type ProfitRequest struct {
	From *time.Time
	To   *time.Time
}

type ProfitReport struct {
	Lines        []ProfitLine `json:"lines"`
	UnitsSold    int          `json:"units_sold"`
	TotalCost    money.Cents  `json:"total_cost"`
	TotalRevenue money.Cents  `json:"total_revenue"`
	TotalProfit  money.Cents  `json:"total_profit"`
}

// ProductReconciliation is the per-product diff between local
// available serials and the SKUs listed in the remote catalog.
type ProductReconciliation struct {
	ProductID         snowflake.ID `json:"product_id,string"`
	SKU               string       `json:"sku"`
	ShopifyProductID  string       `json:"shopify_product_id"`
	InShopifyNotLocal []string     `json:"in_shopify_not_local,omitempty"`
	InLocalNotShopify []string     `json:"in_local_not_shopify,omitempty"`
	Error             string       `json:"error,omitempty"`
}

type ReconcileReport struct {
	Products     []ProductReconciliation `json:"products"`
	Discrepant   int                     `json:"discrepant"`
	CheckedCount int                     `json:"checked_count"`
}

// VariantLister is the remote catalog view the reconciliation pass
// reads from.
type VariantLister interface {
	ListVariantSKUs(ctx context.Context, shopifyProductID string) ([]string, error)
}

type Service interface {
	InventorySummary(ctx context.Context) (*InventoryReport, error)
	Profit(ctx context.Context, req ProfitRequest) (*ProfitReport, error)
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}
