package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/config"
	"github.com/spokeworks/chainline/internal/invoice/alloc"
	"github.com/spokeworks/chainline/internal/invoice/domain"
	"github.com/spokeworks/chainline/internal/observability/metrics"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/db"
	"github.com/spokeworks/chainline/pkg/db/option"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"github.com/spokeworks/chainline/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SerialSource is the slice of the serial allocator the orchestrator
// needs: a committing allocation and a non-mutating preview.
type SerialSource interface {
	Allocate(ctx context.Context, count int) ([]string, error)
	Peek(ctx context.Context, count int) ([]string, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Serial   SerialSource
	Products productdomain.Service
	Queue    unitdomain.SyncQueue `optional:"true"`
	Meter    *metrics.Metrics     `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	serial   SerialSource
	products productdomain.Service
	queue    unitdomain.SyncQueue
	meter    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		serial:   p.Serial,
		products: p.Products,
		queue:    p.Queue,
		meter:    p.Meter,
	}
}

// Create ingests a parsed supplier document. Lines carrying a SKU hint
// are matched to catalog products immediately; the rest wait for
// operator resolution.
func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.InvoiceDetail, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.InvoiceDetail{}, domain.ErrInvalidReference
	}
	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		return domain.InvoiceDetail{}, domain.ErrInvalidSupplier
	}
	if err := validCharges(req.ShippingCost, req.Discount, req.CardFees, req.Tax, req.OtherFees); err != nil {
		return domain.InvoiceDetail{}, err
	}

	now := s.clock.Now()
	invoice := domain.Invoice{
		ID:           s.genID.Generate(),
		Reference:    reference,
		Supplier:     supplier,
		InvoiceDate:  req.InvoiceDate,
		ShippingCost: req.ShippingCost,
		Discount:     req.Discount,
		CardFees:     req.CardFees,
		Tax:          req.Tax,
		OtherFees:    req.OtherFees,
		Status:       domain.StatusPending,
		RawPayload:   req.RawPayload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	lines := make([]domain.LineItem, 0, len(req.Lines))
	for i, parsed := range req.Lines {
		description := strings.TrimSpace(parsed.Description)
		if description == "" {
			return domain.InvoiceDetail{}, domain.ErrInvalidLine
		}
		if parsed.Quantity < 1 {
			return domain.InvoiceDetail{}, domain.ErrInvalidQuantity
		}

		totalCost := parsed.TotalCost
		if totalCost == 0 {
			totalCost = parsed.UnitCost.Mul(int64(parsed.Quantity))
		}

		line := domain.LineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Position:    i,
			Description: description,
			Quantity:    parsed.Quantity,
			UnitCost:    parsed.UnitCost,
			TotalCost:   totalCost,
			BrandHint:   strings.TrimSpace(parsed.BrandHint),
			ModelHint:   strings.TrimSpace(parsed.ModelHint),
			ColorHint:   strings.TrimSpace(parsed.ColorHint),
			SizeHint:    strings.TrimSpace(parsed.SizeHint),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if sku := strings.TrimSpace(parsed.SKUHint); sku != "" {
			product, err := s.products.GetBySKU(ctx, sku)
			switch {
			case err == nil:
				id := product.ID
				line.ProductID = &id
			case errors.Is(err, productdomain.ErrNotFound):
				// Unmatched: the operator resolves it later.
			default:
				return domain.InvoiceDetail{}, err
			}
		}

		lines = append(lines, line)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Overwrite {
			if err := s.dropPendingDuplicate(tx, reference); err != nil {
				return err
			}
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.InvoiceDetail{}, domain.ErrDuplicateReference
		}
		return domain.InvoiceDetail{}, err
	}

	s.log.Info("invoice ingested",
		zap.String("reference", reference),
		zap.String("supplier", supplier),
		zap.Int("lines", len(lines)),
	)
	return s.detail(invoice, lines), nil
}

// dropPendingDuplicate deletes a pending invoice carrying the given
// reference so a re-upload can replace it. Approved and rejected
// invoices stay put and the re-upload fails as a duplicate.
func (s *Service) dropPendingDuplicate(tx *gorm.DB, reference string) error {
	var existing domain.Invoice
	err := tx.First(&existing, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Status != domain.StatusPending {
		return domain.ErrDuplicateReference
	}

	if err := tx.Where("invoice_id = ?", existing.ID).Delete(&domain.LineItem{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(&domain.Invoice{}, "id = ?", existing.ID).Error; err != nil {
		return err
	}

	s.log.Info("pending invoice replaced",
		zap.String("reference", reference),
		zap.Int64("replaced_id", int64(existing.ID)),
	)
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	stmt := s.db.WithContext(ctx).Model(&domain.Invoice{})
	if v := strings.TrimSpace(req.Status); v != "" {
		stmt = stmt.Where("status = ?", v)
	}
	if v := strings.TrimSpace(req.Supplier); v != "" {
		stmt = stmt.Where("supplier = ?", v)
	}

	var items []*domain.Invoice
	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)
	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.InvoiceDetail, error) {
	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	invoice, lines, err := s.load(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}
	return s.detail(*invoice, lines), nil
}

func (s *Service) UpdateCharges(ctx context.Context, req domain.UpdateChargesRequest) (domain.InvoiceDetail, error) {
	invoiceID, err := s.parseID(req.ID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	invoice, lines, err := s.load(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}
	if invoice.Status != domain.StatusPending {
		return domain.InvoiceDetail{}, domain.ErrNotPending
	}

	if req.ShippingCost != nil {
		invoice.ShippingCost = *req.ShippingCost
	}
	if req.Discount != nil {
		invoice.Discount = *req.Discount
	}
	if req.CardFees != nil {
		invoice.CardFees = *req.CardFees
	}
	if req.Tax != nil {
		invoice.Tax = *req.Tax
	}
	if req.OtherFees != nil {
		invoice.OtherFees = *req.OtherFees
	}
	if err := validCharges(invoice.ShippingCost, invoice.Discount, invoice.CardFees, invoice.Tax, invoice.OtherFees); err != nil {
		return domain.InvoiceDetail{}, err
	}
	invoice.UpdatedAt = s.clock.Now()

	if err := s.db.WithContext(ctx).Save(invoice).Error; err != nil {
		return domain.InvoiceDetail{}, err
	}
	return s.detail(*invoice, lines), nil
}

func (s *Service) MatchLine(ctx context.Context, req domain.MatchLineRequest) (domain.LineItem, error) {
	invoiceID, err := s.parseID(req.InvoiceID)
	if err != nil {
		return domain.LineItem{}, err
	}
	lineID, err := s.parseID(req.LineItemID)
	if err != nil {
		return domain.LineItem{}, err
	}

	invoice, _, err := s.load(ctx, invoiceID)
	if err != nil {
		return domain.LineItem{}, err
	}
	if invoice.Status != domain.StatusPending {
		return domain.LineItem{}, domain.ErrNotPending
	}

	var line domain.LineItem
	err = s.db.WithContext(ctx).
		First(&line, "id = ? AND invoice_id = ?", lineID, invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LineItem{}, domain.ErrLineNotFound
	}
	if err != nil {
		return domain.LineItem{}, err
	}

	if productID := strings.TrimSpace(req.ProductID); productID == "" {
		line.ProductID = nil
	} else {
		product, err := s.products.GetByID(ctx, productdomain.GetProductRequest{ID: productID})
		if err != nil {
			return domain.LineItem{}, err
		}
		id := product.ID
		line.ProductID = &id
	}
	line.UpdatedAt = s.clock.Now()

	if err := s.db.WithContext(ctx).Save(&line).Error; err != nil {
		return domain.LineItem{}, err
	}
	return line, nil
}

// Preview runs the allocation engine and a serial peek without
// consuming anything, so the operator can inspect the exact units an
// approval would create.
func (s *Service) Preview(ctx context.Context, id string) (domain.Preview, error) {
	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Preview{}, err
	}

	invoice, lines, err := s.load(ctx, invoiceID)
	if err != nil {
		return domain.Preview{}, err
	}
	if len(lines) == 0 {
		return domain.Preview{}, domain.ErrNoLines
	}

	allocations, err := s.allocate(lines, *invoice)
	if err != nil {
		return domain.Preview{}, err
	}

	totalUnits := 0
	for _, line := range lines {
		totalUnits += line.Quantity
	}
	serials, err := s.serial.Peek(ctx, totalUnits)
	if err != nil {
		return domain.Preview{}, err
	}

	preview := domain.Preview{
		Subtotal: domain.Subtotal(lines),
		Extras:   extrasOf(*invoice).Total(),
	}
	preview.Total = preview.Subtotal + preview.Extras

	next := 0
	for i, line := range lines {
		for _, cost := range allocations[i].UnitCosts {
			planned := domain.PlannedUnit{
				LineItemID:  line.ID.String(),
				Description: line.Description,
				Serial:      serials[next],
				UnitCost:    cost,
			}
			if line.ProductID != nil {
				planned.ProductID = line.ProductID.String()
			}
			preview.Units = append(preview.Units, planned)
			next++
		}
	}

	return preview, nil
}

// Approve drives pending -> approved: allocate costs, reserve serials,
// create one unit per physical bike, flip the status, then hand the
// units to the catalog sync queue. Serial reservation commits before
// the approval transaction, so a failure here leaves a gap in the
// sequence rather than reused numbers.
func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (domain.ApproveResult, error) {
	invoiceID, err := s.parseID(req.ID)
	if err != nil {
		return domain.ApproveResult{}, err
	}

	invoice, lines, err := s.load(ctx, invoiceID)
	if err != nil {
		return domain.ApproveResult{}, err
	}
	if invoice.Status != domain.StatusPending {
		return domain.ApproveResult{}, domain.ErrNotPending
	}
	if len(lines) == 0 {
		return domain.ApproveResult{}, domain.ErrNoLines
	}
	for _, line := range lines {
		if line.ProductID == nil {
			return domain.ApproveResult{}, domain.ErrUnmatchedLines
		}
	}

	allocations, err := s.allocate(lines, *invoice)
	if err != nil {
		return domain.ApproveResult{}, err
	}

	totalUnits := 0
	for _, line := range lines {
		totalUnits += line.Quantity
	}

	serials, err := s.serial.Allocate(ctx, totalUnits)
	if err != nil {
		return domain.ApproveResult{}, err
	}

	now := s.clock.Now()
	unitStatus := unitdomain.StatusAvailable
	if s.cfg.ReceiveMode == config.ReceiveModeTransit {
		unitStatus = unitdomain.StatusInTransit
	}

	units := make([]unitdomain.InventoryUnit, 0, totalUnits)
	next := 0
	for i := range lines {
		line := &lines[i]
		base := allocations[i].AllocatedUnitCost
		line.AllocatedUnitCost = &base
		line.UpdatedAt = now

		for _, cost := range allocations[i].UnitCosts {
			lineID := line.ID
			unit := unitdomain.InventoryUnit{
				ID:         s.genID.Generate(),
				Serial:     serials[next],
				ProductID:  *line.ProductID,
				InvoiceID:  &invoiceID,
				LineItemID: &lineID,
				Status:     unitStatus,
				ActualCost: cost,
				SyncStatus: unitdomain.SyncPending,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if unitStatus == unitdomain.StatusAvailable {
				unit.ReceivedAt = &now
			}
			units = append(units, unit)
			next++
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Invoice{}).
			Where("id = ? AND status = ?", invoiceID, domain.StatusPending).
			Updates(map[string]interface{}{
				"status":      domain.StatusApproved,
				"approved_by": strings.TrimSpace(req.ApprovedBy),
				"approved_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotPending
		}

		for i := range lines {
			if err := tx.Model(&domain.LineItem{}).
				Where("id = ?", lines[i].ID).
				Updates(map[string]interface{}{
					"allocated_unit_cost": *lines[i].AllocatedUnitCost,
					"updated_at":          now,
				}).Error; err != nil {
				return err
			}
		}

		return tx.Create(&units).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			s.log.Warn("approval lost status race; serial block gapped",
				zap.String("reference", invoice.Reference),
				zap.Int("serials", len(serials)),
			)
		}
		return domain.ApproveResult{}, err
	}

	invoice.Status = domain.StatusApproved
	invoice.ApprovedBy = strings.TrimSpace(req.ApprovedBy)
	invoice.ApprovedAt = &now
	invoice.UpdatedAt = now

	s.meter.RecordInvoiceApproved()
	s.log.Info("invoice approved",
		zap.String("reference", invoice.Reference),
		zap.Int("units", len(units)),
		zap.String("first_serial", serials[0]),
	)

	syncQueued := false
	if unitStatus == unitdomain.StatusAvailable && s.queue != nil {
		tasks := make([]unitdomain.SyncTask, 0, len(units))
		for _, unit := range units {
			tasks = append(tasks, unitdomain.SyncTask{UnitID: unit.ID, Op: unitdomain.OpPush})
		}
		s.queue.Enqueue(tasks...)
		syncQueued = true
	}

	return domain.ApproveResult{
		Invoice:      *invoice,
		UnitsCreated: len(units),
		Serials:      serials,
		SyncQueued:   syncQueued,
	}, nil
}

// Reject drives pending -> rejected. No units, no serials.
func (s *Service) Reject(ctx context.Context, id string) (domain.Invoice, error) {
	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice, _, err := s.load(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":     domain.StatusRejected,
			"updated_at": now,
		})
	if res.Error != nil {
		return domain.Invoice{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Invoice{}, domain.ErrNotPending
	}

	invoice.Status = domain.StatusRejected
	invoice.UpdatedAt = now
	return *invoice, nil
}

func (s *Service) allocate(lines []domain.LineItem, invoice domain.Invoice) ([]alloc.LineAllocation, error) {
	allocLines := make([]alloc.Line, 0, len(lines))
	for _, line := range lines {
		allocLines = append(allocLines, alloc.Line{
			Quantity: line.Quantity,
			UnitCost: line.UnitCost,
		})
	}

	allocations, err := alloc.Allocate(allocLines, extrasOf(invoice))
	if err != nil {
		if errors.Is(err, alloc.ErrNoUnits) {
			return nil, domain.ErrNoLines
		}
		if errors.Is(err, alloc.ErrInvalidQuantity) {
			return nil, domain.ErrInvalidQuantity
		}
		return nil, err
	}
	return allocations, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.Invoice, []domain.LineItem, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var lines []domain.LineItem
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", id).
		Order("position asc").
		Find(&lines).Error; err != nil {
		return nil, nil, err
	}

	return &invoice, lines, nil
}

func (s *Service) detail(invoice domain.Invoice, lines []domain.LineItem) domain.InvoiceDetail {
	subtotal := domain.Subtotal(lines)
	return domain.InvoiceDetail{
		Invoice:  invoice,
		Lines:    lines,
		Subtotal: subtotal,
		Total:    subtotal + extrasOf(invoice).Total(),
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func extrasOf(invoice domain.Invoice) alloc.Extras {
	return alloc.Extras{
		Shipping: invoice.ShippingCost,
		Discount: invoice.Discount,
		CardFees: invoice.CardFees,
		Tax:      invoice.Tax,
		Other:    invoice.OtherFees,
	}
}

func validCharges(charges ...money.Cents) error {
	for _, c := range charges {
		if c < 0 {
			return domain.ErrInvalidLine
		}
	}
	return nil
}
