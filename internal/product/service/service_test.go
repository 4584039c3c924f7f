package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/internal/product/repository"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeCatalog struct {
	deleted []string
	err     error
}

func (c *fakeCatalog) DeleteVariant(ctx context.Context, unit unitdomain.InventoryUnit) error {
	if c.err != nil {
		return c.err
	}
	c.deleted = append(c.deleted, unit.Serial)
	return nil
}

type fixture struct {
	svc     domain.Service
	catalog *fakeCatalog
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Product{},
		&unitdomain.InventoryUnit{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	catalog := &fakeCatalog{}
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fakeClock,
		Repo:   repository.Provide(),
		Syncer: catalog,
	})

	return &fixture{svc: svc, catalog: catalog, db: db, node: node, clock: fakeClock}
}

func (f *fixture) seedUnit(t *testing.T, productID snowflake.ID, serial, status string) {
	t.Helper()
	require.NoError(t, f.db.Create(&unitdomain.InventoryUnit{
		ID:         f.node.Generate(),
		Serial:     serial,
		ProductID:  productID,
		Status:     status,
		SyncStatus: unitdomain.SyncPending,
		CreatedAt:  f.clock.Now(),
		UpdatedAt:  f.clock.Now(),
	}).Error)
}

func TestGenerateSKU(t *testing.T) {
	assert.Equal(t, "TREK-MARLIN-7", GenerateSKU("Trek", "Marlin 7", "", ""))
	assert.Equal(t, "TREK-MARLIN-7-BLUE-M", GenerateSKU("Trek", "Marlin 7", "Blue", "M"))
	assert.Equal(t, "TREK-MARLIN-7-54CM", GenerateSKU("Trek", "Marlin 7", "  ", "54cm"))
}

func TestCreateGeneratesSKU(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand:     "  Trek ",
		Model:     "Marlin 7",
		Color:     "Blue",
		Size:      "M",
		ListPrice: money.MustFromDecimalString("1299.99"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Trek", product.Brand)
	assert.Equal(t, "TREK-MARLIN-7-BLUE-M", product.SKU)
	assert.NotZero(t, product.ID)
	assert.Equal(t, f.clock.Now(), product.CreatedAt)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateProductRequest{Model: "Marlin 7"})
	assert.ErrorIs(t, err, domain.ErrInvalidBrand)

	_, err = f.svc.Create(ctx, domain.CreateProductRequest{Brand: "Trek", Model: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
}

func TestCreateDuplicateSKU(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := domain.CreateProductRequest{Brand: "Trek", Model: "Marlin 7", SKU: "TREK-M7"}
	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand:     "Trek",
		Model:     "Marlin 7",
		Color:     "Blue",
		Size:      "M",
		ListPrice: money.MustFromDecimalString("1299.99"),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	newColor := "Red"
	newPrice := money.MustFromDecimalString("1199.00")
	updated, err := f.svc.Update(ctx, domain.UpdateProductRequest{
		ID:        product.ID.String(),
		Color:     &newColor,
		ListPrice: &newPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, "Red", updated.Color)
	assert.Equal(t, newPrice, updated.ListPrice)
	assert.Equal(t, "M", updated.Size)
	assert.Equal(t, product.SKU, updated.SKU)
	assert.Equal(t, f.clock.Now(), updated.UpdatedAt)
}

func TestUpdateNotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Update(context.Background(), domain.UpdateProductRequest{
		ID: f.node.Generate().String(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Update(context.Background(), domain.UpdateProductRequest{ID: "not-a-number"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestGetBySKU(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand: "Trek", Model: "Marlin 7", SKU: "TREK-M7",
	})
	require.NoError(t, err)

	found, err := f.svc.GetBySKU(ctx, "TREK-M7")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = f.svc.GetBySKU(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetBySKU(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersByBrand(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, req := range []domain.CreateProductRequest{
		{Brand: "Trek", Model: "Marlin 7"},
		{Brand: "Trek", Model: "FX 3"},
		{Brand: "Giant", Model: "Talon 2"},
	} {
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	resp, err := f.svc.List(ctx, domain.ListProductRequest{Brand: "Trek"})
	require.NoError(t, err)
	require.Len(t, resp.Products, 2)
	for _, p := range resp.Products {
		assert.Equal(t, "Trek", p.Brand)
	}

	resp, err = f.svc.List(ctx, domain.ListProductRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Products, 3)
}

func TestDeleteRemovesUnsoldUnits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand: "Trek", Model: "Marlin 7",
	})
	require.NoError(t, err)

	f.seedUnit(t, product.ID, "BK-00001", unitdomain.StatusAvailable)
	f.seedUnit(t, product.ID, "BK-00002", unitdomain.StatusInTransit)

	require.NoError(t, f.svc.Delete(ctx, domain.DeleteProductRequest{ID: product.ID.String()}))

	var units int64
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("product_id = ?", product.ID).Count(&units).Error)
	assert.Zero(t, units)

	_, err = f.svc.GetByID(ctx, domain.GetProductRequest{ID: product.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteReleasesLinkedVariants(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand: "Trek", Model: "Marlin 7",
	})
	require.NoError(t, err)

	f.seedUnit(t, product.ID, "BK-00001", unitdomain.StatusAvailable)
	f.seedUnit(t, product.ID, "BK-00002", unitdomain.StatusAvailable)
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("serial = ?", "BK-00001").
		Update("shopify_variant_id", "gid://shopify/ProductVariant/42").Error)

	require.NoError(t, f.svc.Delete(ctx, domain.DeleteProductRequest{ID: product.ID.String()}))

	// Only the linked unit had anything remote to release.
	assert.Equal(t, []string{"BK-00001"}, f.catalog.deleted)

	var units int64
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("product_id = ?", product.ID).Count(&units).Error)
	assert.Zero(t, units)
}

func TestDeleteProceedsWhenVariantReleaseFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand: "Trek", Model: "Marlin 7",
	})
	require.NoError(t, err)

	f.seedUnit(t, product.ID, "BK-00001", unitdomain.StatusAvailable)
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("serial = ?", "BK-00001").
		Update("shopify_variant_id", "gid://shopify/ProductVariant/42").Error)
	f.catalog.err = errors.New("shopify unavailable")

	require.NoError(t, f.svc.Delete(ctx, domain.DeleteProductRequest{ID: product.ID.String()}))

	var units int64
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("product_id = ?", product.ID).Count(&units).Error)
	assert.Zero(t, units)
}

func TestDeleteBlockedBySoldUnits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	product, err := f.svc.Create(ctx, domain.CreateProductRequest{
		Brand: "Trek", Model: "Marlin 7",
	})
	require.NoError(t, err)

	f.seedUnit(t, product.ID, "BK-00001", unitdomain.StatusSold)
	f.seedUnit(t, product.ID, "BK-00002", unitdomain.StatusAvailable)

	err = f.svc.Delete(ctx, domain.DeleteProductRequest{ID: product.ID.String()})
	assert.ErrorIs(t, err, domain.ErrHasSoldUnits)

	// Nothing is removed when the delete is refused.
	assert.Empty(t, f.catalog.deleted)
	var units int64
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("product_id = ?", product.ID).Count(&units).Error)
	assert.Equal(t, int64(2), units)

	_, err = f.svc.GetByID(ctx, domain.GetProductRequest{ID: product.ID.String()})
	assert.NoError(t, err)
}
