package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/product/domain"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/db"
	"github.com/spokeworks/chainline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Syncer unitdomain.CatalogSyncer `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	syncer unitdomain.CatalogSyncer
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("product.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		syncer: p.Syncer,
	}
}

// GenerateSKU derives a stable SKU from brand and model, optionally
// disambiguated by color and size.
func GenerateSKU(brand, model, color, size string) string {
	parts := []string{brand, model}
	if strings.TrimSpace(color) != "" {
		parts = append(parts, color)
	}
	if strings.TrimSpace(size) != "" {
		parts = append(parts, size)
	}
	return strings.ToUpper(slug.Make(strings.Join(parts, " ")))
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	brand := strings.TrimSpace(req.Brand)
	if brand == "" {
		return domain.Product{}, domain.ErrInvalidBrand
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return domain.Product{}, domain.ErrInvalidModel
	}

	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		sku = GenerateSKU(brand, model, req.Color, req.Size)
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:        s.genID.Generate(),
		Brand:     brand,
		Model:     model,
		SKU:       sku,
		Category:  strings.TrimSpace(req.Category),
		Color:     strings.TrimSpace(req.Color),
		Size:      strings.TrimSpace(req.Size),
		ListPrice: req.ListPrice,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &product); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Product{}, domain.ErrDuplicateSKU
		}
		return domain.Product{}, err
	}

	return product, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateProductRequest) (domain.Product, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Product{}, err
	}
	if product == nil {
		return domain.Product{}, domain.ErrNotFound
	}

	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.Color != nil {
		product.Color = strings.TrimSpace(*req.Color)
	}
	if req.Size != nil {
		product.Size = strings.TrimSpace(*req.Size)
	}
	if req.ListPrice != nil {
		product.ListPrice = *req.ListPrice
	}
	product.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, product); err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProductRequest) (domain.ListProductResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListProductFilter{
		Brand:    strings.TrimSpace(req.Brand),
		Category: strings.TrimSpace(req.Category),
		SKU:      strings.TrimSpace(req.SKU),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListProductResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(product *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        product.ID.String(),
			CreatedAt: product.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		products = append(products, *item)
	}

	resp := domain.ListProductResponse{Products: products}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetProductRequest) (domain.Product, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Product{}, err
	}
	if product == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *product, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, domain.ErrNotFound
	}

	product, err := s.repo.FindBySKU(ctx, s.db, sku)
	if err != nil {
		return domain.Product{}, err
	}
	if product == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *product, nil
}

// Delete removes a product and its unsold units. Remote variants are
// released first so the cascade never strands a Shopify listing.
// Products with sold units are kept for reporting history.
func (s *Service) Delete(ctx context.Context, req domain.DeleteProductRequest) error {
	id, err := s.parseID(req.ID)
	if err != nil {
		return err
	}

	product, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if product == nil {
		return domain.ErrNotFound
	}

	var sold int64
	if err := s.db.WithContext(ctx).Model(&unitdomain.InventoryUnit{}).
		Where("product_id = ? AND status = ?", id, unitdomain.StatusSold).
		Count(&sold).Error; err != nil {
		return err
	}
	if sold > 0 {
		return domain.ErrHasSoldUnits
	}

	s.releaseVariants(ctx, id)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-checked under the delete transaction; a unit can sell
		// between the cleanup pass and the commit.
		var sold int64
		if err := tx.Model(&unitdomain.InventoryUnit{}).
			Where("product_id = ? AND status = ?", id, unitdomain.StatusSold).
			Count(&sold).Error; err != nil {
			return err
		}
		if sold > 0 {
			return domain.ErrHasSoldUnits
		}

		res := tx.Where("product_id = ?", id).Delete(&unitdomain.InventoryUnit{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			s.log.Warn("deleting product with linked units",
				zap.Int64("product_id", id),
				zap.Int64("units_removed", res.RowsAffected),
			)
		}

		return s.repo.Delete(ctx, tx, id)
	})
}

// releaseVariants best-effort deletes the remote variants of a
// product's units before the cascade removes the local rows. A failed
// remote call logs and moves on; the local delete still proceeds.
func (s *Service) releaseVariants(ctx context.Context, productID int64) {
	if s.syncer == nil {
		return
	}

	var units []unitdomain.InventoryUnit
	if err := s.db.WithContext(ctx).
		Where("product_id = ? AND shopify_variant_id <> ''", productID).
		Find(&units).Error; err != nil {
		s.log.Warn("variant cleanup lookup failed",
			zap.Int64("product_id", productID),
			zap.Error(err),
		)
		return
	}

	for _, unit := range units {
		if err := s.syncer.DeleteVariant(ctx, unit); err != nil {
			s.log.Warn("variant cleanup failed",
				zap.String("serial", unit.Serial),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) parseID(value string) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return int64(id), nil
}
