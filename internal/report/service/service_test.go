package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/internal/report/domain"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeVariantLister struct {
	skus map[string][]string
	errs map[string]error
}

func (l *fakeVariantLister) ListVariantSKUs(ctx context.Context, shopifyProductID string) ([]string, error) {
	if err := l.errs[shopifyProductID]; err != nil {
		return nil, err
	}
	return l.skus[shopifyProductID], nil
}

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	node     *snowflake.Node
	variants *fakeVariantLister
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&productdomain.Product{},
		&unitdomain.InventoryUnit{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	variants := &fakeVariantLister{
		skus: map[string][]string{},
		errs: map[string]error{},
	}
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Variants: variants,
	})

	return &fixture{svc: svc, db: db, node: node, variants: variants}
}

func (f *fixture) seedProduct(t *testing.T, brand, model, sku, shopifyID string) productdomain.Product {
	t.Helper()
	product := productdomain.Product{
		ID:               f.node.Generate(),
		Brand:            brand,
		Model:            model,
		SKU:              sku,
		ShopifyProductID: shopifyID,
	}
	require.NoError(t, f.db.Create(&product).Error)
	return product
}

type unitSeed struct {
	serial string
	status string
	cost   string
	price  string
	order  string
	soldAt *time.Time
}

func (f *fixture) seedUnit(t *testing.T, productID snowflake.ID, seed unitSeed) {
	t.Helper()
	unit := unitdomain.InventoryUnit{
		ID:         f.node.Generate(),
		Serial:     seed.serial,
		ProductID:  productID,
		Status:     seed.status,
		SyncStatus: unitdomain.SyncPending,
		SoldAt:     seed.soldAt,
	}
	if seed.cost != "" {
		unit.ActualCost = money.MustFromDecimalString(seed.cost)
	}
	if seed.price != "" {
		unit.SalePrice = money.MustFromDecimalString(seed.price)
	}
	unit.SoldOrderID = seed.order
	require.NoError(t, f.db.Create(&unit).Error)
}

func timePtr(v time.Time) *time.Time { return &v }

func TestInventorySummary(t *testing.T) {
	f := setup(t)

	trek := f.seedProduct(t, "Trek", "Marlin 7", "TREK-M7", "")
	giant := f.seedProduct(t, "Giant", "Talon 2", "GIANT-T2", "")

	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00001", status: unitdomain.StatusAvailable, cost: "830.00"})
	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00002", status: unitdomain.StatusAvailable, cost: "830.00"})
	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00003", status: unitdomain.StatusSold, cost: "830.00"})
	f.seedUnit(t, giant.ID, unitSeed{serial: "BK-00004", status: unitdomain.StatusInTransit, cost: "1230.00"})

	report, err := f.svc.InventorySummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), report.TotalUnits)
	// Sold units are excluded from inventory value.
	assert.Equal(t, money.MustFromDecimalString("2890.00"), report.TotalCost)

	require.Len(t, report.ByStatus, 3)
	assert.Equal(t, domain.StatusSummary{
		Status:    unitdomain.StatusAvailable,
		Count:     2,
		TotalCost: money.MustFromDecimalString("1660.00"),
	}, report.ByStatus[0])

	require.Len(t, report.ByProduct, 2)
	assert.Equal(t, "Giant", report.ByProduct[0].Brand)
	assert.Equal(t, int64(1), report.ByProduct[0].InTransit)
	assert.Equal(t, "Trek", report.ByProduct[1].Brand)
	assert.Equal(t, int64(2), report.ByProduct[1].Available)
	assert.Equal(t, int64(1), report.ByProduct[1].Sold)
	assert.Equal(t, money.MustFromDecimalString("1660.00"), report.ByProduct[1].TotalCost)
}

func TestProfit(t *testing.T) {
	f := setup(t)

	trek := f.seedProduct(t, "Trek", "Marlin 7", "TREK-M7", "")

	jan := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	f.seedUnit(t, trek.ID, unitSeed{
		serial: "BK-00001", status: unitdomain.StatusSold,
		cost: "830.00", price: "1299.99", order: "#1001", soldAt: timePtr(jan),
	})
	f.seedUnit(t, trek.ID, unitSeed{
		serial: "BK-00002", status: unitdomain.StatusSold,
		cost: "830.00", price: "1199.00", order: "#1002", soldAt: timePtr(feb),
	})
	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00003", status: unitdomain.StatusAvailable, cost: "830.00"})

	report, err := f.svc.Profit(context.Background(), domain.ProfitRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.UnitsSold)
	assert.Equal(t, money.MustFromDecimalString("1660.00"), report.TotalCost)
	assert.Equal(t, money.MustFromDecimalString("2498.99"), report.TotalRevenue)
	assert.Equal(t, money.MustFromDecimalString("838.99"), report.TotalProfit)

	require.Len(t, report.Lines, 2)
	assert.Equal(t, "BK-00001", report.Lines[0].Serial)
	assert.Equal(t, money.MustFromDecimalString("469.99"), report.Lines[0].Profit)
	assert.Equal(t, "#1001", report.Lines[0].OrderID)
}

func TestProfitDateRange(t *testing.T) {
	f := setup(t)

	trek := f.seedProduct(t, "Trek", "Marlin 7", "TREK-M7", "")

	jan := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	f.seedUnit(t, trek.ID, unitSeed{
		serial: "BK-00001", status: unitdomain.StatusSold,
		cost: "830.00", price: "1299.99", soldAt: timePtr(jan),
	})
	f.seedUnit(t, trek.ID, unitSeed{
		serial: "BK-00002", status: unitdomain.StatusSold,
		cost: "830.00", price: "1199.00", soldAt: timePtr(feb),
	})

	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	report, err := f.svc.Profit(context.Background(), domain.ProfitRequest{From: &from})
	require.NoError(t, err)
	require.Equal(t, 1, report.UnitsSold)
	assert.Equal(t, "BK-00002", report.Lines[0].Serial)

	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	report, err = f.svc.Profit(context.Background(), domain.ProfitRequest{To: &to})
	require.NoError(t, err)
	require.Equal(t, 1, report.UnitsSold)
	assert.Equal(t, "BK-00001", report.Lines[0].Serial)
}

func TestReconcile(t *testing.T) {
	f := setup(t)

	trek := f.seedProduct(t, "Trek", "Marlin 7", "TREK-M7", "gid://shopify/Product/1")
	giant := f.seedProduct(t, "Giant", "Talon 2", "GIANT-T2", "gid://shopify/Product/2")
	f.seedProduct(t, "Specialized", "Rockhopper", "SPEC-RH", "")

	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00001", status: unitdomain.StatusAvailable})
	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00002", status: unitdomain.StatusAvailable})
	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00003", status: unitdomain.StatusSold})
	f.seedUnit(t, giant.ID, unitSeed{serial: "BK-00004", status: unitdomain.StatusAvailable})

	f.variants.skus["gid://shopify/Product/1"] = []string{"BK-00001", "BK-00003"}
	f.variants.skus["gid://shopify/Product/2"] = []string{"BK-00004"}

	report, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)

	// The unlinked product is skipped entirely.
	assert.Equal(t, 2, report.CheckedCount)
	assert.Equal(t, 1, report.Discrepant)
	require.Len(t, report.Products, 2)

	clean := report.Products[0]
	assert.Equal(t, "GIANT-T2", clean.SKU)
	assert.Empty(t, clean.InShopifyNotLocal)
	assert.Empty(t, clean.InLocalNotShopify)

	dirty := report.Products[1]
	assert.Equal(t, "TREK-M7", dirty.SKU)
	assert.Equal(t, []string{"BK-00003"}, dirty.InShopifyNotLocal)
	assert.Equal(t, []string{"BK-00002"}, dirty.InLocalNotShopify)
}

func TestReconcileRecordsPerProductErrors(t *testing.T) {
	f := setup(t)

	trek := f.seedProduct(t, "Trek", "Marlin 7", "TREK-M7", "gid://shopify/Product/1")
	f.seedProduct(t, "Giant", "Talon 2", "GIANT-T2", "gid://shopify/Product/2")

	f.seedUnit(t, trek.ID, unitSeed{serial: "BK-00001", status: unitdomain.StatusAvailable})

	f.variants.skus["gid://shopify/Product/1"] = []string{"BK-00001"}
	f.variants.errs["gid://shopify/Product/2"] = errors.New("remote unavailable")

	report, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Products, 2)
	assert.Equal(t, "remote unavailable", report.Products[0].Error)
	assert.Empty(t, report.Products[1].Error)
	assert.Zero(t, report.Discrepant)
}

func TestReconcileWithoutCatalog(t *testing.T) {
	f := setup(t)

	svc := New(Params{DB: f.db, Log: zap.NewNop()})
	_, err := svc.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}
