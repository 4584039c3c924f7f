package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/db"
	"github.com/spokeworks/chainline/pkg/db/option"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SerialSource hands out serial numbers for manually entered units.
type SerialSource interface {
	Allocate(ctx context.Context, count int) ([]string, error)
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Serial SerialSource
	Queue  domain.SyncQueue     `optional:"true"`
	Syncer domain.CatalogSyncer `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	serial SerialSource
	queue  domain.SyncQueue
	syncer domain.CatalogSyncer
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("unit.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		serial: p.Serial,
		queue:  p.Queue,
		syncer: p.Syncer,
	}
}

// Create registers a single unit outside the invoice flow. When no
// serial is given one is taken from the allocator.
func (s *Service) Create(ctx context.Context, req domain.CreateUnitRequest) (domain.InventoryUnit, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil || productID == 0 {
		return domain.InventoryUnit{}, domain.ErrInvalidProduct
	}

	var exists int64
	if err := s.db.WithContext(ctx).Table("products").
		Where("id = ?", productID).
		Count(&exists).Error; err != nil {
		return domain.InventoryUnit{}, err
	}
	if exists == 0 {
		return domain.InventoryUnit{}, domain.ErrInvalidProduct
	}

	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.StatusAvailable
	}
	if !domain.IsStatus(status) {
		return domain.InventoryUnit{}, domain.ErrInvalidStatus
	}

	serialNo := strings.TrimSpace(req.Serial)
	if serialNo == "" {
		serials, err := s.serial.Allocate(ctx, 1)
		if err != nil {
			return domain.InventoryUnit{}, err
		}
		serialNo = serials[0]
	}

	now := s.clock.Now()
	unit := domain.InventoryUnit{
		ID:         s.genID.Generate(),
		Serial:     serialNo,
		ProductID:  productID,
		Status:     status,
		ActualCost: req.ActualCost,
		SyncStatus: domain.SyncPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == domain.StatusAvailable {
		unit.ReceivedAt = &now
	}

	if err := s.db.WithContext(ctx).Create(&unit).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.InventoryUnit{}, domain.ErrDuplicateSerial
		}
		return domain.InventoryUnit{}, err
	}

	if status == domain.StatusAvailable {
		s.enqueue(domain.SyncTask{UnitID: unit.ID, Op: domain.OpPush})
	}

	return unit, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUnitRequest) (domain.ListUnitResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	stmt := s.db.WithContext(ctx).Model(&domain.InventoryUnit{})
	if v := strings.TrimSpace(req.ProductID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			return domain.ListUnitResponse{}, domain.ErrInvalidProduct
		}
		stmt = stmt.Where("product_id = ?", id)
	}
	if v := strings.TrimSpace(req.Status); v != "" {
		if !domain.IsStatus(v) {
			return domain.ListUnitResponse{}, domain.ErrInvalidStatus
		}
		stmt = stmt.Where("status = ?", v)
	}
	if v := strings.TrimSpace(req.InvoiceID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			return domain.ListUnitResponse{}, domain.ErrInvalidID
		}
		stmt = stmt.Where("invoice_id = ?", id)
	}

	var items []*domain.InventoryUnit
	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)
	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return domain.ListUnitResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(unit *domain.InventoryUnit) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        unit.ID.String(),
			CreatedAt: unit.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	units := make([]domain.InventoryUnit, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		units = append(units, *item)
	}

	resp := domain.ListUnitResponse{Units: units}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.InventoryUnit, error) {
	unitID, err := s.parseID(id)
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	return s.findByID(ctx, unitID)
}

func (s *Service) GetBySerial(ctx context.Context, serialNo string) (domain.InventoryUnit, error) {
	serialNo = strings.TrimSpace(serialNo)
	if serialNo == "" {
		return domain.InventoryUnit{}, domain.ErrInvalidSerial
	}

	var unit domain.InventoryUnit
	err := s.db.WithContext(ctx).First(&unit, "serial = ?", serialNo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.InventoryUnit{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	return unit, nil
}

// MarkReceived moves an in-transit unit to available and queues its
// catalog push.
func (s *Service) MarkReceived(ctx context.Context, id string) (domain.InventoryUnit, error) {
	unitID, err := s.parseID(id)
	if err != nil {
		return domain.InventoryUnit{}, err
	}

	unit, err := s.findByID(ctx, unitID)
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	if unit.Status != domain.StatusInTransit {
		return domain.InventoryUnit{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	unit.Status = domain.StatusAvailable
	unit.ReceivedAt = &now
	unit.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&unit).Error; err != nil {
		return domain.InventoryUnit{}, err
	}

	s.enqueue(domain.SyncTask{UnitID: unit.ID, Op: domain.OpPush})
	return unit, nil
}

// MarkSoldBySerial records a sale against the serial regardless of the
// unit's prior status; the caller inspects FromStatus to spot units
// that sold before they were received or after being flagged damaged.
func (s *Service) MarkSoldBySerial(ctx context.Context, req domain.MarkSoldRequest) (domain.MarkSoldResult, error) {
	unit, err := s.GetBySerial(ctx, req.Serial)
	if err != nil {
		return domain.MarkSoldResult{}, err
	}
	if unit.Status == domain.StatusSold {
		return domain.MarkSoldResult{}, domain.ErrAlreadySold
	}

	from := unit.Status
	now := s.clock.Now()
	orderID := strings.TrimSpace(req.OrderID)

	// Guarded so two deliveries racing on the same serial record one sale.
	res := s.db.WithContext(ctx).Model(&domain.InventoryUnit{}).
		Where("id = ? AND status <> ?", unit.ID, domain.StatusSold).
		Updates(map[string]interface{}{
			"status":        domain.StatusSold,
			"sold_at":       now,
			"sale_price":    req.SalePrice,
			"sold_order_id": orderID,
			"updated_at":    now,
		})
	if res.Error != nil {
		return domain.MarkSoldResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.MarkSoldResult{}, domain.ErrAlreadySold
	}

	unit.Status = domain.StatusSold
	unit.SoldAt = &now
	unit.SalePrice = req.SalePrice
	unit.SoldOrderID = orderID
	unit.UpdatedAt = now

	if unit.ShopifyVariantID != "" {
		s.enqueue(domain.SyncTask{UnitID: unit.ID, Op: domain.OpArchive})
	}

	return domain.MarkSoldResult{Unit: unit, FromStatus: from}, nil
}

func (s *Service) SetStatus(ctx context.Context, id, status string) (domain.InventoryUnit, error) {
	status = strings.TrimSpace(status)
	if !domain.IsStatus(status) {
		return domain.InventoryUnit{}, domain.ErrInvalidStatus
	}
	// Sales only come in through the order webhook.
	if status == domain.StatusSold {
		return domain.InventoryUnit{}, domain.ErrInvalidTransition
	}

	unitID, err := s.parseID(id)
	if err != nil {
		return domain.InventoryUnit{}, err
	}

	unit, err := s.findByID(ctx, unitID)
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	if !domain.CanTransition(unit.Status, status) {
		return domain.InventoryUnit{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	if status == domain.StatusAvailable && unit.ReceivedAt == nil {
		unit.ReceivedAt = &now
	}
	unit.Status = status
	unit.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(&unit).Error; err != nil {
		return domain.InventoryUnit{}, err
	}

	return unit, nil
}

// Delete removes an unsold unit. The remote variant goes first so a
// failed Shopify call never leaves an orphaned listing.
func (s *Service) Delete(ctx context.Context, id string) error {
	unitID, err := s.parseID(id)
	if err != nil {
		return err
	}

	unit, err := s.findByID(ctx, unitID)
	if err != nil {
		return err
	}
	if unit.Status == domain.StatusSold {
		return domain.ErrDeleteSold
	}

	if unit.ShopifyVariantID != "" && s.syncer != nil {
		if err := s.syncer.DeleteVariant(ctx, unit); err != nil {
			s.log.Error("variant delete failed",
				zap.String("serial", unit.Serial),
				zap.Error(err),
			)
			return err
		}
	}

	return s.db.WithContext(ctx).Delete(&domain.InventoryUnit{}, "id = ?", unitID).Error
}

// RetrySync clears a failed sync and queues the unit again.
func (s *Service) RetrySync(ctx context.Context, id string) (domain.InventoryUnit, error) {
	unitID, err := s.parseID(id)
	if err != nil {
		return domain.InventoryUnit{}, err
	}

	unit, err := s.findByID(ctx, unitID)
	if err != nil {
		return domain.InventoryUnit{}, err
	}

	unit.SyncStatus = domain.SyncPending
	unit.SyncError = ""
	unit.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(&unit).Error; err != nil {
		return domain.InventoryUnit{}, err
	}

	s.enqueue(domain.SyncTask{UnitID: unit.ID, Op: domain.OpPush})
	return unit, nil
}

func (s *Service) enqueue(task domain.SyncTask) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue(task)
}

func (s *Service) findByID(ctx context.Context, id snowflake.ID) (domain.InventoryUnit, error) {
	var unit domain.InventoryUnit
	err := s.db.WithContext(ctx).First(&unit, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.InventoryUnit{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	return unit, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
