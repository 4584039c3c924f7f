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
	invoicedomain "github.com/spokeworks/chainline/internal/invoice/domain"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	productrepository "github.com/spokeworks/chainline/internal/product/repository"
	productservice "github.com/spokeworks/chainline/internal/product/service"
	"github.com/spokeworks/chainline/internal/serial"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeQueue struct {
	tasks []unitdomain.SyncTask
}

func (q *fakeQueue) Enqueue(tasks ...unitdomain.SyncTask) {
	q.tasks = append(q.tasks, tasks...)
}

type fixture struct {
	svc       invoicedomain.Service
	products  productdomain.Service
	allocator *serial.Allocator
	queue     *fakeQueue
	db        *gorm.DB
	node      *snowflake.Node
}

func setup(t *testing.T, receiveMode string) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&serial.Counter{},
		&productdomain.Product{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&unitdomain.InventoryUnit{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	cfg := config.Config{
		SerialPrefix: "BK",
		SerialWidth:  5,
		SerialStart:  1,
		ReceiveMode:  receiveMode,
	}

	allocator := serial.New(serial.Params{
		DB:    db,
		Log:   logger,
		Clock: fakeClock,
		Cfg:   cfg,
	})
	require.NoError(t, allocator.EnsureCounter(context.Background()))

	products := productservice.New(productservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: fakeClock,
		Repo:  productrepository.Provide(),
	})

	queue := &fakeQueue{}
	svc := New(Params{
		DB:       db,
		Log:      logger,
		GenID:    node,
		Clock:    fakeClock,
		Cfg:      cfg,
		Serial:   allocator,
		Products: products,
		Queue:    queue,
	})

	return &fixture{
		svc:       svc,
		products:  products,
		allocator: allocator,
		queue:     queue,
		db:        db,
		node:      node,
	}
}

func (f *fixture) createProduct(t *testing.T, brand, model string) productdomain.Product {
	t.Helper()
	product, err := f.products.Create(context.Background(), productdomain.CreateProductRequest{
		Brand:     brand,
		Model:     model,
		ListPrice: money.MustFromDecimalString("1499.00"),
	})
	require.NoError(t, err)
	return product
}

func (f *fixture) createMatchedInvoice(t *testing.T, reference string) invoicedomain.InvoiceDetail {
	t.Helper()

	gravel := f.createProduct(t, "Ridgeline", "Gravel "+reference)
	road := f.createProduct(t, "Ridgeline", "Road "+reference)

	detail, err := f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		Reference:    reference,
		Supplier:     "Velocity Wholesale",
		ShippingCost: money.MustFromDecimalString("90.00"),
		Lines: []invoicedomain.ParsedLine{
			{Description: "Gravel bike", Quantity: 2, UnitCost: money.MustFromDecimalString("800.00"), SKUHint: gravel.SKU},
			{Description: "Road bike", Quantity: 1, UnitCost: money.MustFromDecimalString("1200.00"), SKUHint: road.SKU},
		},
	})
	require.NoError(t, err)
	require.Len(t, detail.Lines, 2)
	require.NotNil(t, detail.Lines[0].ProductID)
	require.NotNil(t, detail.Lines[1].ProductID)
	return detail
}

func TestApproveCreatesUnitsWithAllocatedCosts(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1001")

	result, err := f.svc.Approve(ctx, invoicedomain.ApproveRequest{
		ID:         detail.Invoice.ID.String(),
		ApprovedBy: "casey",
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.StatusApproved, result.Invoice.Status)
	assert.Equal(t, "casey", result.Invoice.ApprovedBy)
	assert.Equal(t, 3, result.UnitsCreated)
	assert.Equal(t, []string{"BK-00001", "BK-00002", "BK-00003"}, result.Serials)
	assert.True(t, result.SyncQueued)
	assert.Len(t, f.queue.tasks, 3)

	var units []unitdomain.InventoryUnit
	require.NoError(t, f.db.
		Where("invoice_id = ?", detail.Invoice.ID).
		Order("serial asc").
		Find(&units).Error)
	require.Len(t, units, 3)

	// 90.00 shipping over 3 units: 30.00 each.
	assert.Equal(t, money.MustFromDecimalString("830.00"), units[0].ActualCost)
	assert.Equal(t, money.MustFromDecimalString("830.00"), units[1].ActualCost)
	assert.Equal(t, money.MustFromDecimalString("1230.00"), units[2].ActualCost)

	for _, unit := range units {
		assert.Equal(t, unitdomain.StatusAvailable, unit.Status)
		assert.NotNil(t, unit.ReceivedAt)
		assert.Equal(t, unitdomain.SyncPending, unit.SyncStatus)
	}

	var lines []invoicedomain.LineItem
	require.NoError(t, f.db.
		Where("invoice_id = ?", detail.Invoice.ID).
		Order("position asc").
		Find(&lines).Error)
	require.NotNil(t, lines[0].AllocatedUnitCost)
	require.NotNil(t, lines[1].AllocatedUnitCost)
	assert.Equal(t, money.MustFromDecimalString("830.00"), *lines[0].AllocatedUnitCost)
	assert.Equal(t, money.MustFromDecimalString("1230.00"), *lines[1].AllocatedUnitCost)
}

func TestApproveTransitModeDefersSync(t *testing.T) {
	f := setup(t, config.ReceiveModeTransit)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1002")

	result, err := f.svc.Approve(ctx, invoicedomain.ApproveRequest{ID: detail.Invoice.ID.String()})
	require.NoError(t, err)
	assert.False(t, result.SyncQueued)
	assert.Empty(t, f.queue.tasks)

	var units []unitdomain.InventoryUnit
	require.NoError(t, f.db.Where("invoice_id = ?", detail.Invoice.ID).Find(&units).Error)
	require.Len(t, units, 3)
	for _, unit := range units {
		assert.Equal(t, unitdomain.StatusInTransit, unit.Status)
		assert.Nil(t, unit.ReceivedAt)
	}
}

func TestApproveUnmatchedLinesConsumesNoSerials(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1003",
		Supplier:  "Velocity Wholesale",
		Lines: []invoicedomain.ParsedLine{
			{Description: "Mystery bike", Quantity: 1, UnitCost: money.MustFromDecimalString("500.00")},
		},
	})
	require.NoError(t, err)

	before, err := f.allocator.Next(ctx)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, invoicedomain.ApproveRequest{ID: detail.Invoice.ID.String()})
	assert.ErrorIs(t, err, invoicedomain.ErrUnmatchedLines)

	after, err := f.allocator.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	var count int64
	require.NoError(t, f.db.Model(&unitdomain.InventoryUnit{}).
		Where("invoice_id = ?", detail.Invoice.ID).
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestApproveTwiceFails(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1004")

	_, err := f.svc.Approve(ctx, invoicedomain.ApproveRequest{ID: detail.Invoice.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, invoicedomain.ApproveRequest{ID: detail.Invoice.ID.String()})
	assert.ErrorIs(t, err, invoicedomain.ErrNotPending)
}

func TestRejectBlocksApproval(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1005")

	rejected, err := f.svc.Reject(ctx, detail.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusRejected, rejected.Status)

	_, err = f.svc.Approve(ctx, invoicedomain.ApproveRequest{ID: detail.Invoice.ID.String()})
	assert.ErrorIs(t, err, invoicedomain.ErrNotPending)

	_, err = f.svc.Reject(ctx, detail.Invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotPending)
}

func TestCreateDuplicateReference(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	req := invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1006",
		Supplier:  "Velocity Wholesale",
		Lines: []invoicedomain.ParsedLine{
			{Description: "Bike", Quantity: 1, UnitCost: money.MustFromDecimalString("400.00")},
		},
	}

	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateReference)
}

func TestCreateOverwriteReplacesPending(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1006",
		Supplier:  "Velocity Wholesale",
		Lines: []invoicedomain.ParsedLine{
			{Description: "Bike", Quantity: 1, UnitCost: money.MustFromDecimalString("400.00")},
		},
	})
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1006",
		Supplier:  "Velocity Wholesale",
		Overwrite: true,
		Lines: []invoicedomain.ParsedLine{
			{Description: "Bike", Quantity: 2, UnitCost: money.MustFromDecimalString("410.00")},
		},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Invoice.ID, second.Invoice.ID)

	// The replaced invoice and its lines are gone.
	var invoices int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("reference = ?", "INV-1006").Count(&invoices).Error)
	assert.Equal(t, int64(1), invoices)

	var lines int64
	require.NoError(t, f.db.Model(&invoicedomain.LineItem{}).
		Where("invoice_id = ?", first.Invoice.ID).Count(&lines).Error)
	assert.Zero(t, lines)
}

func TestCreateOverwriteRefusesApproved(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1007")
	_, err := f.svc.Approve(ctx, invoicedomain.ApproveRequest{
		ID:         detail.Invoice.ID.String(),
		ApprovedBy: "sam",
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1007",
		Supplier:  "Velocity Wholesale",
		Overwrite: true,
		Lines: []invoicedomain.ParsedLine{
			{Description: "Bike", Quantity: 1, UnitCost: money.MustFromDecimalString("400.00")},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateReference)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{Supplier: "X"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidReference)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{Reference: "R"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidSupplier)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1007",
		Supplier:  "Velocity Wholesale",
		Lines: []invoicedomain.ParsedLine{
			{Description: "Bike", Quantity: 0, UnitCost: money.MustFromDecimalString("100.00")},
		},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)
}

func TestPreviewDoesNotConsumeSerials(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1008")

	first, err := f.svc.Preview(ctx, detail.Invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, first.Units, 3)
	assert.Equal(t, money.MustFromDecimalString("2800.00"), first.Subtotal)
	assert.Equal(t, money.MustFromDecimalString("90.00"), first.Extras)
	assert.Equal(t, money.MustFromDecimalString("2890.00"), first.Total)
	assert.Equal(t, "BK-00001", first.Units[0].Serial)
	assert.Equal(t, money.MustFromDecimalString("830.00"), first.Units[0].UnitCost)
	assert.Equal(t, money.MustFromDecimalString("1230.00"), first.Units[2].UnitCost)

	second, err := f.svc.Preview(ctx, detail.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, first.Units, second.Units)
}

func TestUpdateChargesRecomputesTotal(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	detail := f.createMatchedInvoice(t, "INV-1009")

	tax := money.MustFromDecimalString("60.00")
	updated, err := f.svc.UpdateCharges(ctx, invoicedomain.UpdateChargesRequest{
		ID:  detail.Invoice.ID.String(),
		Tax: &tax,
	})
	require.NoError(t, err)
	assert.Equal(t, money.MustFromDecimalString("2950.00"), updated.Total)

	// Charges freeze once the invoice leaves pending.
	_, err = f.svc.Approve(ctx, invoicedomain.ApproveRequest{ID: detail.Invoice.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.UpdateCharges(ctx, invoicedomain.UpdateChargesRequest{ID: detail.Invoice.ID.String(), Tax: &tax})
	assert.ErrorIs(t, err, invoicedomain.ErrNotPending)
}

func TestMatchLineAndClear(t *testing.T) {
	f := setup(t, config.ReceiveModeAvailable)
	ctx := context.Background()

	product := f.createProduct(t, "Ridgeline", "City INV-1010")
	detail, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		Reference: "INV-1010",
		Supplier:  "Velocity Wholesale",
		Lines: []invoicedomain.ParsedLine{
			{Description: "City bike", Quantity: 1, UnitCost: money.MustFromDecimalString("650.00")},
		},
	})
	require.NoError(t, err)
	require.Nil(t, detail.Lines[0].ProductID)

	line, err := f.svc.MatchLine(ctx, invoicedomain.MatchLineRequest{
		InvoiceID:  detail.Invoice.ID.String(),
		LineItemID: detail.Lines[0].ID.String(),
		ProductID:  product.ID.String(),
	})
	require.NoError(t, err)
	require.NotNil(t, line.ProductID)
	assert.Equal(t, product.ID, *line.ProductID)

	cleared, err := f.svc.MatchLine(ctx, invoicedomain.MatchLineRequest{
		InvoiceID:  detail.Invoice.ID.String(),
		LineItemID: detail.Lines[0].ID.String(),
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.ProductID)
}
