package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/config"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/internal/serial"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	unitservice "github.com/spokeworks/chainline/internal/unit/service"
	"github.com/spokeworks/chainline/internal/webhook/domain"
	"github.com/spokeworks/chainline/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&serial.Counter{},
		&productdomain.Product{},
		&unitdomain.InventoryUnit{},
		&domain.WebhookLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	cfg := config.Config{
		SerialPrefix: "BK",
		SerialWidth:  5,
		SerialStart:  1,
	}

	allocator := serial.New(serial.Params{DB: db, Log: logger, Clock: fakeClock, Cfg: cfg})
	require.NoError(t, allocator.EnsureCounter(context.Background()))

	units := unitservice.New(unitservice.Params{
		DB:     db,
		Log:    logger,
		GenID:  node,
		Clock:  fakeClock,
		Serial: allocator,
	})

	svc := New(Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: fakeClock,
		Cfg:   cfg,
		Units: units,
	})

	return &fixture{svc: svc, db: db, node: node}
}

func (f *fixture) seedUnit(t *testing.T, serialNo, status string) unitdomain.InventoryUnit {
	t.Helper()
	product := productdomain.Product{
		ID:    f.node.Generate(),
		Brand: "Ridgeline",
		Model: "Gravel",
		SKU:   "SKU-" + f.node.Generate().String(),
	}
	require.NoError(t, f.db.Create(&product).Error)

	unit := unitdomain.InventoryUnit{
		ID:         f.node.Generate(),
		Serial:     serialNo,
		ProductID:  product.ID,
		Status:     status,
		ActualCost: money.MustFromDecimalString("830.00"),
		SyncStatus: unitdomain.SyncPending,
	}
	require.NoError(t, f.db.Create(&unit).Error)
	return unit
}

func orderPayloadFor(serial string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":820982911946154508,"name":"#1042","line_items":[{"sku":%q,"price":"1499.00","quantity":1}]}`,
		serial,
	))
}

func TestHandleOrderCreateSellsUnit(t *testing.T) {
	f := setup(t)
	f.seedUnit(t, "BK-00001", unitdomain.StatusAvailable)

	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-1", orderPayloadFor("BK-00001"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, result.Status)
	assert.Equal(t, 1, result.UnitsSold)
	assert.Empty(t, result.Discrepancies)

	var unit unitdomain.InventoryUnit
	require.NoError(t, f.db.First(&unit, "serial = ?", "BK-00001").Error)
	assert.Equal(t, unitdomain.StatusSold, unit.Status)
	assert.Equal(t, "#1042", unit.SoldOrderID)
	assert.Equal(t, money.MustFromDecimalString("1499.00"), unit.SalePrice)

	var entry domain.WebhookLog
	require.NoError(t, f.db.First(&entry, "webhook_id = ?", "wh-1").Error)
	assert.Equal(t, domain.StatusProcessed, entry.Status)
}

func TestHandleOrderCreateDuplicateDelivery(t *testing.T) {
	f := setup(t)
	f.seedUnit(t, "BK-00002", unitdomain.StatusAvailable)

	_, err := f.svc.HandleOrderCreate(context.Background(), "wh-2", orderPayloadFor("BK-00002"))
	require.NoError(t, err)

	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-2", orderPayloadFor("BK-00002"))
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, domain.StatusProcessed, result.Status)

	var count int64
	require.NoError(t, f.db.Model(&domain.WebhookLog{}).
		Where("webhook_id = ?", "wh-2").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Only one sale recorded.
	var unit unitdomain.InventoryUnit
	require.NoError(t, f.db.First(&unit, "serial = ?", "BK-00002").Error)
	assert.Equal(t, unitdomain.StatusSold, unit.Status)
}

func TestHandleOrderCreateUnknownSerial(t *testing.T) {
	f := setup(t)

	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-3", orderPayloadFor("BK-99999"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.Zero(t, result.UnitsSold)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, "not_found", result.Discrepancies[0].Reason)
}

func TestHandleOrderCreateAlreadySold(t *testing.T) {
	f := setup(t)
	f.seedUnit(t, "BK-00004", unitdomain.StatusSold)

	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-4", orderPayloadFor("BK-00004"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartial, result.Status)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, "already_sold", result.Discrepancies[0].Reason)
}

func TestHandleOrderCreateSoldFromTransit(t *testing.T) {
	f := setup(t)
	f.seedUnit(t, "BK-00005", unitdomain.StatusInTransit)

	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-5", orderPayloadFor("BK-00005"))
	require.NoError(t, err)

	// The sale is recorded, flagged as a discrepancy for review.
	assert.Equal(t, domain.StatusPartial, result.Status)
	assert.Equal(t, 1, result.UnitsSold)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, "sold_from_in_transit", result.Discrepancies[0].Reason)

	var unit unitdomain.InventoryUnit
	require.NoError(t, f.db.First(&unit, "serial = ?", "BK-00005").Error)
	assert.Equal(t, unitdomain.StatusSold, unit.Status)
}

func TestHandleOrderCreateIgnoresForeignSKUs(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"id":1,"name":"#1050","line_items":[{"sku":"TSHIRT-L","price":"25.00","quantity":2}]}`)
	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-6", payload)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, result.Status)
	assert.Zero(t, result.UnitsSold)
	assert.Empty(t, result.Discrepancies)
}

func TestHandleOrderCreateBadPayload(t *testing.T) {
	f := setup(t)

	result, err := f.svc.HandleOrderCreate(context.Background(), "wh-7", []byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, result.Status)

	var entry domain.WebhookLog
	require.NoError(t, f.db.First(&entry, "webhook_id = ?", "wh-7").Error)
	assert.Equal(t, domain.StatusError, entry.Status)
}

func TestHandleOrderCreateMissingWebhookID(t *testing.T) {
	f := setup(t)

	_, err := f.svc.HandleOrderCreate(context.Background(), "  ", orderPayloadFor("BK-00001"))
	assert.ErrorIs(t, err, domain.ErrMissingWebhookID)
}
