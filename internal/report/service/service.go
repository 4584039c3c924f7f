package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/internal/report/domain"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrCatalogUnavailable = errors.New("catalog_unavailable")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Variants domain.VariantLister `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	variants domain.VariantLister
}

func New(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("report.service"),
		variants: p.Variants,
	}
}

func (s *service) InventorySummary(ctx context.Context) (*domain.InventoryReport, error) {
	report := &domain.InventoryReport{}

	var statusRows []struct {
		Status    string
		Count     int64
		TotalCost money.Cents
	}
	err := s.db.WithContext(ctx).Model(&unitdomain.InventoryUnit{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(actual_cost), 0) AS total_cost").
		Group("status").
		Scan(&statusRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		report.ByStatus = append(report.ByStatus, domain.StatusSummary{
			Status:    row.Status,
			Count:     row.Count,
			TotalCost: row.TotalCost,
		})
		report.TotalUnits += row.Count
		// Sold units no longer count toward inventory value.
		if row.Status != unitdomain.StatusSold {
			report.TotalCost += row.TotalCost
		}
	}
	sort.Slice(report.ByStatus, func(i, j int) bool {
		return report.ByStatus[i].Status < report.ByStatus[j].Status
	})

	var productRows []struct {
		ProductID snowflake.ID
		Brand     string
		Model     string
		SKU       string
		Available int64
		InTransit int64
		Sold      int64
		TotalCost money.Cents
	}
	err = s.db.WithContext(ctx).Table("inventory_units AS u").
		Select(`u.product_id,
			p.brand, p.model, p.sku,
			SUM(CASE WHEN u.status = ? THEN 1 ELSE 0 END) AS available,
			SUM(CASE WHEN u.status = ? THEN 1 ELSE 0 END) AS in_transit,
			SUM(CASE WHEN u.status = ? THEN 1 ELSE 0 END) AS sold,
			COALESCE(SUM(CASE WHEN u.status != ? THEN u.actual_cost ELSE 0 END), 0) AS total_cost`,
			unitdomain.StatusAvailable, unitdomain.StatusInTransit,
			unitdomain.StatusSold, unitdomain.StatusSold).
		Joins("JOIN products p ON p.id = u.product_id").
		Group("u.product_id, p.brand, p.model, p.sku").
		Order("p.brand, p.model").
		Scan(&productRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range productRows {
		report.ByProduct = append(report.ByProduct, domain.ProductSummary{
			ProductID: row.ProductID,
			Brand:     row.Brand,
			Model:     row.Model,
			SKU:       row.SKU,
			Available: row.Available,
			InTransit: row.InTransit,
			Sold:      row.Sold,
			TotalCost: row.TotalCost,
		})
	}

	return report, nil
}

func (s *service) Profit(ctx context.Context, req domain.ProfitRequest) (*domain.ProfitReport, error) {
	stmt := s.db.WithContext(ctx).Table("inventory_units AS u").
		Select("u.serial, u.product_id, p.brand, p.model, u.actual_cost, u.sale_price, u.sold_order_id, u.sold_at").
		Joins("JOIN products p ON p.id = u.product_id").
		Where("u.status = ?", unitdomain.StatusSold).
		Order("u.sold_at ASC")
	if req.From != nil {
		stmt = stmt.Where("u.sold_at >= ?", *req.From)
	}
	if req.To != nil {
		stmt = stmt.Where("u.sold_at < ?", *req.To)
	}

	var rows []struct {
		Serial      string
		ProductID   snowflake.ID
		Brand       string
		Model       string
		ActualCost  money.Cents
		SalePrice   money.Cents
		SoldOrderID string
		SoldAt      *time.Time
	}
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}

	report := &domain.ProfitReport{UnitsSold: len(rows)}
	for _, row := range rows {
		line := domain.ProfitLine{
			Serial:     row.Serial,
			ProductID:  row.ProductID,
			Brand:      row.Brand,
			Model:      row.Model,
			ActualCost: row.ActualCost,
			SalePrice:  row.SalePrice,
			Profit:     row.SalePrice - row.ActualCost,
			OrderID:    row.SoldOrderID,
			SoldAt:     row.SoldAt,
		}
		report.Lines = append(report.Lines, line)
		report.TotalCost += line.ActualCost
		report.TotalRevenue += line.SalePrice
		report.TotalProfit += line.Profit
	}
	return report, nil
}

// Reconcile diffs local available serials against the remote catalog
// per linked product. A fetch failure for one product is recorded on
// its row and never aborts the pass.
func (s *service) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	if s.variants == nil {
		return nil, ErrCatalogUnavailable
	}

	var products []productdomain.Product
	err := s.db.WithContext(ctx).
		Where("shopify_product_id != ''").
		Order("brand, model").
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	report := &domain.ReconcileReport{}
	for _, product := range products {
		row := domain.ProductReconciliation{
			ProductID:        product.ID,
			SKU:              product.SKU,
			ShopifyProductID: product.ShopifyProductID,
		}
		report.CheckedCount++

		var localSerials []string
		err := s.db.WithContext(ctx).Model(&unitdomain.InventoryUnit{}).
			Where("product_id = ? AND status = ?", product.ID, unitdomain.StatusAvailable).
			Order("serial ASC").
			Pluck("serial", &localSerials).Error
		if err != nil {
			return nil, err
		}

		remoteSKUs, err := s.variants.ListVariantSKUs(ctx, product.ShopifyProductID)
		if err != nil {
			s.log.Warn("remote variant fetch failed",
				zap.String("shopify_product_id", product.ShopifyProductID),
				zap.Error(err),
			)
			row.Error = err.Error()
			report.Products = append(report.Products, row)
			continue
		}

		row.InShopifyNotLocal, row.InLocalNotShopify = diff(remoteSKUs, localSerials)
		if len(row.InShopifyNotLocal) > 0 || len(row.InLocalNotShopify) > 0 {
			report.Discrepant++
		}
		report.Products = append(report.Products, row)
	}
	return report, nil
}

func diff(remote, local []string) (remoteOnly, localOnly []string) {
	remoteSet := make(map[string]bool, len(remote))
	for _, sku := range remote {
		remoteSet[sku] = true
	}
	localSet := make(map[string]bool, len(local))
	for _, serial := range local {
		localSet[serial] = true
	}
	for _, sku := range remote {
		if !localSet[sku] {
			remoteOnly = append(remoteOnly, sku)
		}
	}
	for _, serial := range local {
		if !remoteSet[serial] {
			localOnly = append(localOnly, serial)
		}
	}
	sort.Strings(remoteOnly)
	sort.Strings(localOnly)
	return remoteOnly, localOnly
}
