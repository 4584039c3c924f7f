package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/config"
	"github.com/spokeworks/chainline/internal/observability/metrics"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SyncerParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Client *Client
	Clock  clock.Clock
	Cfg    config.Config
	Meter  *metrics.Metrics `optional:"true"`
}

// Syncer mirrors local inventory into the Shopify catalog: one product
// per brand+model, one single-quantity variant per unit with the serial
// as SKU. Shopify is a best-effort mirror, never the source of truth
// for local financial state.
type Syncer struct {
	db     *gorm.DB
	log    *zap.Logger
	client *Client
	clock  clock.Clock
	meter  *metrics.Metrics
	prefix string
}

func NewSyncer(p SyncerParams) *Syncer {
	return &Syncer{
		db:     p.DB,
		log:    p.Log.Named("shopify.syncer"),
		client: p.Client,
		clock:  p.Clock,
		meter:  p.Meter,
		prefix: p.Cfg.SerialPrefix,
	}
}

// EnsureProduct returns the Shopify product id for the product's
// brand+model, creating the remote product when necessary. Sibling
// products (same brand+model, different color/size) share the remote
// product; whichever sibling links first wins and is propagated.
func (s *Syncer) EnsureProduct(ctx context.Context, product *productdomain.Product) (string, error) {
	title := strings.TrimSpace(product.Brand + " " + product.Model)
	if title == "" {
		return "", errors.New("product has no title")
	}

	var siblings []productdomain.Product
	if err := s.db.WithContext(ctx).
		Where("brand = ? AND model = ?", product.Brand, product.Model).
		Find(&siblings).Error; err != nil {
		return "", err
	}

	for _, sibling := range siblings {
		if sibling.ShopifyProductID != "" {
			if err := s.linkSiblings(ctx, siblings, sibling.ShopifyProductID); err != nil {
				return "", err
			}
			return sibling.ShopifyProductID, nil
		}
	}

	// Search by exact title before creating.
	var search struct {
		Products struct {
			Edges []struct {
				Node struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	}
	err := s.client.Execute(ctx, searchProductsQuery, map[string]interface{}{
		"query": fmt.Sprintf("title:'%s'", title),
	}, &search)
	if err != nil {
		return "", fmt.Errorf("product search failed for %q: %w", title, err)
	}
	for _, edge := range search.Products.Edges {
		if strings.EqualFold(edge.Node.Title, title) {
			if err := s.linkSiblings(ctx, siblings, edge.Node.ID); err != nil {
				return "", err
			}
			return edge.Node.ID, nil
		}
	}

	var created struct {
		ProductCreate struct {
			UserErrors []userError `json:"userErrors"`
			Product    struct {
				ID string `json:"id"`
			} `json:"product"`
		} `json:"productCreate"`
	}
	err = s.client.Execute(ctx, createProductMutation, map[string]interface{}{
		"input": map[string]interface{}{
			"title":  title,
			"status": "ACTIVE",
			"productOptions": []map[string]interface{}{
				{"name": "Color", "values": []map[string]string{{"name": "Default"}}},
				{"name": "Size", "values": []map[string]string{{"name": "Default"}}},
				{"name": "Serial", "values": []map[string]string{{"name": "Default"}}},
			},
		},
	}, &created)
	if err != nil {
		return "", fmt.Errorf("product create failed for %q: %w", title, err)
	}
	if len(created.ProductCreate.UserErrors) > 0 {
		return "", fmt.Errorf("product create errors for %q: %v", title, created.ProductCreate.UserErrors)
	}

	remoteID := created.ProductCreate.Product.ID
	if err := s.linkSiblings(ctx, siblings, remoteID); err != nil {
		return "", err
	}

	s.publishToAllChannels(ctx, remoteID)
	return remoteID, nil
}

func (s *Syncer) linkSiblings(ctx context.Context, siblings []productdomain.Product, remoteID string) error {
	ids := make([]snowflake.ID, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ShopifyProductID == "" {
			ids = append(ids, sibling.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&productdomain.Product{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"shopify_product_id": remoteID,
			"updated_at":         s.clock.Now(),
		}).Error
}

// publishToAllChannels is best-effort: a product that only reaches
// some channels is still sellable, so failures log and move on.
func (s *Syncer) publishToAllChannels(ctx context.Context, productGID string) {
	publications, err := s.client.PublicationIDs(ctx)
	if err != nil {
		s.log.Warn("publication lookup failed", zap.Error(err))
		return
	}
	if len(publications) == 0 {
		s.log.Warn("no publications found, skipping channel publish")
		return
	}

	input := make([]map[string]string, 0, len(publications))
	for _, id := range publications {
		input = append(input, map[string]string{"publicationId": id})
	}

	var out struct {
		PublishablePublish struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"publishablePublish"`
	}
	err = s.client.Execute(ctx, publishablePublishMutation, map[string]interface{}{
		"id":    productGID,
		"input": input,
	}, &out)
	if err != nil {
		s.log.Warn("channel publish failed", zap.String("product", productGID), zap.Error(err))
		return
	}
	if len(out.PublishablePublish.UserErrors) > 0 {
		s.log.Warn("channel publish had errors",
			zap.String("product", productGID),
			zap.Any("errors", out.PublishablePublish.UserErrors),
		)
	}
}

// PushUnits creates one variant per unit under the unit's product.
// Units already linked to a variant are skipped, so repeated calls are
// no-ops. Sync outcomes are recorded per unit; the returned error only
// reports a failure that affected the whole batch.
func (s *Syncer) PushUnits(ctx context.Context, unitIDs []snowflake.ID) error {
	if len(unitIDs) == 0 {
		return nil
	}

	var units []unitdomain.InventoryUnit
	if err := s.db.WithContext(ctx).
		Where("id IN ?", unitIDs).
		Order("serial asc").
		Find(&units).Error; err != nil {
		return err
	}

	byProduct := make(map[snowflake.ID][]unitdomain.InventoryUnit)
	for _, unit := range units {
		if unit.ShopifyVariantID != "" {
			// Already linked: record as synced and move on.
			s.markSynced(ctx, unit.ID, unit.ShopifyVariantID, unit.ShopifyInventoryItemID)
			continue
		}
		byProduct[unit.ProductID] = append(byProduct[unit.ProductID], unit)
	}

	var firstErr error
	for productID, group := range byProduct {
		if err := s.pushProductGroup(ctx, productID, group); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Syncer) pushProductGroup(ctx context.Context, productID snowflake.ID, units []unitdomain.InventoryUnit) error {
	var product productdomain.Product
	err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error
	if err != nil {
		s.markGroupError(ctx, units, fmt.Sprintf("product lookup failed: %v", err))
		return err
	}

	remoteID, err := s.EnsureProduct(ctx, &product)
	if err != nil {
		s.markGroupError(ctx, units, err.Error())
		return err
	}

	locationID, err := s.client.LocationID(ctx)
	if err != nil {
		s.markGroupError(ctx, units, err.Error())
		return err
	}

	color := defaultIfEmpty(product.Color)
	size := defaultIfEmpty(product.Size)

	variants := make([]map[string]interface{}, 0, len(units))
	for _, unit := range units {
		variants = append(variants, map[string]interface{}{
			"optionValues": []map[string]string{
				{"optionName": "Color", "name": color},
				{"optionName": "Size", "name": size},
				{"optionName": "Serial", "name": unit.Serial},
			},
			"price":   product.ListPrice.DecimalString(),
			"barcode": strings.TrimPrefix(unit.Serial, s.prefix+"-"),
			"inventoryItem": map[string]interface{}{
				"cost":    unit.ActualCost.DecimalString(),
				"sku":     unit.Serial,
				"tracked": true,
			},
			"inventoryQuantities": []map[string]interface{}{
				{"locationId": locationID, "availableQuantity": 1},
			},
		})
	}

	var out struct {
		ProductVariantsBulkCreate struct {
			UserErrors      []userError `json:"userErrors"`
			ProductVariants []struct {
				ID  string `json:"id"`
				SKU string `json:"sku"`
			} `json:"productVariants"`
		} `json:"productVariantsBulkCreate"`
	}
	err = s.client.Execute(ctx, createVariantsMutation, map[string]interface{}{
		"productId": remoteID,
		"variants":  variants,
	}, &out)
	if err != nil {
		s.markGroupError(ctx, units, err.Error())
		return err
	}
	if len(out.ProductVariantsBulkCreate.UserErrors) > 0 {
		s.log.Warn("variant creation had errors",
			zap.Any("errors", out.ProductVariantsBulkCreate.UserErrors),
		)
	}

	variantBySKU := make(map[string]string, len(out.ProductVariantsBulkCreate.ProductVariants))
	for _, variant := range out.ProductVariantsBulkCreate.ProductVariants {
		variantBySKU[variant.SKU] = variant.ID
	}

	var missing []string
	for _, unit := range units {
		if variantID, ok := variantBySKU[unit.Serial]; ok {
			s.markSynced(ctx, unit.ID, variantID, "")
			s.meter.RecordUnitSync("synced")
		} else {
			s.markError(ctx, unit.ID, "variant not returned by bulk create")
			s.meter.RecordUnitSync("error")
			missing = append(missing, unit.Serial)
		}
	}

	if len(out.ProductVariantsBulkCreate.ProductVariants) > 0 {
		s.deleteDefaultVariant(ctx, remoteID)
	}

	if len(missing) > 0 {
		return fmt.Errorf("variants not created for serials %v", missing)
	}
	return nil
}

// deleteDefaultVariant removes the Default/Default/Default placeholder
// Shopify adds to a new product. Best-effort.
func (s *Syncer) deleteDefaultVariant(ctx context.Context, remoteID string) {
	var data struct {
		Product struct {
			Variants struct {
				Edges []struct {
					Node struct {
						ID              string `json:"id"`
						SelectedOptions []struct {
							Name  string `json:"name"`
							Value string `json:"value"`
						} `json:"selectedOptions"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"variants"`
		} `json:"product"`
	}
	if err := s.client.Execute(ctx, productVariantsQuery, map[string]interface{}{"id": remoteID}, &data); err != nil {
		s.log.Warn("default variant lookup failed", zap.String("product", remoteID), zap.Error(err))
		return
	}

	var defaults []string
	for _, edge := range data.Product.Variants.Edges {
		allDefault := len(edge.Node.SelectedOptions) > 0
		for _, opt := range edge.Node.SelectedOptions {
			if opt.Value != "Default" {
				allDefault = false
				break
			}
		}
		if allDefault {
			defaults = append(defaults, edge.Node.ID)
		}
	}
	if len(defaults) == 0 {
		return
	}

	var out struct {
		ProductVariantsBulkDelete struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"productVariantsBulkDelete"`
	}
	err := s.client.Execute(ctx, deleteVariantsMutation, map[string]interface{}{
		"productId":   remoteID,
		"variantsIds": defaults,
	}, &out)
	if err != nil {
		s.log.Warn("default variant cleanup failed", zap.String("product", remoteID), zap.Error(err))
		return
	}
	s.log.Info("deleted default variants",
		zap.Int("count", len(defaults)),
		zap.String("product", remoteID),
	)
}

// ArchiveUnit deletes the remote variant of a sold unit and clears the
// local linkage, freeing room under the per-product variant ceiling.
func (s *Syncer) ArchiveUnit(ctx context.Context, unitID snowflake.ID) error {
	var unit unitdomain.InventoryUnit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", unitID).Error; err != nil {
		return err
	}
	if unit.ShopifyVariantID == "" {
		return nil
	}
	return s.DeleteVariant(ctx, unit)
}

// DeleteVariant removes a unit's remote variant and clears the local
// reference. Safe to call for units that were never pushed.
func (s *Syncer) DeleteVariant(ctx context.Context, unit unitdomain.InventoryUnit) error {
	if unit.ShopifyVariantID == "" {
		return nil
	}

	var product productdomain.Product
	err := s.db.WithContext(ctx).First(&product, "id = ?", unit.ProductID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && product.ShopifyProductID == "") {
		return nil
	}
	if err != nil {
		return err
	}

	var out struct {
		ProductVariantsBulkDelete struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"productVariantsBulkDelete"`
	}
	err = s.client.Execute(ctx, deleteVariantsMutation, map[string]interface{}{
		"productId":   product.ShopifyProductID,
		"variantsIds": []string{unit.ShopifyVariantID},
	}, &out)
	if err != nil {
		return err
	}
	if len(out.ProductVariantsBulkDelete.UserErrors) > 0 {
		s.log.Warn("variant deletion had errors",
			zap.Any("errors", out.ProductVariantsBulkDelete.UserErrors),
		)
	}

	return s.db.WithContext(ctx).Model(&unitdomain.InventoryUnit{}).
		Where("id = ?", unit.ID).
		Updates(map[string]interface{}{
			"shopify_variant_id": "",
			"updated_at":         s.clock.Now(),
		}).Error
}

// ListVariantSKUs returns the serial-shaped SKUs currently listed under
// a remote product. Used by the reconciliation pass.
func (s *Syncer) ListVariantSKUs(ctx context.Context, remoteID string) ([]string, error) {
	var data struct {
		Product struct {
			Variants struct {
				Edges []struct {
					Node struct {
						ID  string `json:"id"`
						SKU string `json:"sku"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"variants"`
		} `json:"product"`
	}
	if err := s.client.Execute(ctx, productVariantsQuery, map[string]interface{}{"id": remoteID}, &data); err != nil {
		return nil, err
	}

	var skus []string
	for _, edge := range data.Product.Variants.Edges {
		if strings.HasPrefix(edge.Node.SKU, s.prefix+"-") {
			skus = append(skus, edge.Node.SKU)
		}
	}
	return skus, nil
}

// SyncCatalog pulls remote products into the local catalog, matching
// on the remote product id so re-runs never duplicate.
func (s *Syncer) SyncCatalog(ctx context.Context, genID *snowflake.Node) (created, linked int, err error) {
	cursor := ""
	for {
		vars := map[string]interface{}{}
		if cursor != "" {
			vars["cursor"] = cursor
		}

		var data struct {
			Products struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Edges []struct {
					Node struct {
						ID     string `json:"id"`
						Title  string `json:"title"`
						Vendor string `json:"vendor"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"products"`
		}
		if err := s.client.Execute(ctx, listProductsQuery, vars, &data); err != nil {
			return created, linked, err
		}

		for _, edge := range data.Products.Edges {
			c, l, err := s.upsertRemoteProduct(ctx, genID, edge.Node.ID, edge.Node.Title, edge.Node.Vendor)
			if err != nil {
				return created, linked, err
			}
			created += c
			linked += l
		}

		if !data.Products.PageInfo.HasNextPage {
			return created, linked, nil
		}
		cursor = data.Products.PageInfo.EndCursor
	}
}

func (s *Syncer) upsertRemoteProduct(ctx context.Context, genID *snowflake.Node, remoteID, title, vendor string) (created, linked int, err error) {
	var existing productdomain.Product
	err = s.db.WithContext(ctx).First(&existing, "shopify_product_id = ?", remoteID).Error
	if err == nil {
		return 0, 0, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, err
	}

	brand := strings.TrimSpace(vendor)
	model := strings.TrimSpace(title)
	if brand != "" && strings.HasPrefix(strings.ToLower(model), strings.ToLower(brand)) {
		model = strings.TrimSpace(model[len(brand):])
	}
	if brand == "" || model == "" {
		s.log.Warn("skipping remote product without brand/model",
			zap.String("remote_id", remoteID),
			zap.String("title", title),
		)
		return 0, 0, nil
	}

	// Link by brand+model when a local product already exists.
	var local productdomain.Product
	err = s.db.WithContext(ctx).
		First(&local, "brand = ? AND model = ? AND shopify_product_id = ''", brand, model).Error
	if err == nil {
		if uerr := s.db.WithContext(ctx).Model(&local).
			Updates(map[string]interface{}{
				"shopify_product_id": remoteID,
				"updated_at":         s.clock.Now(),
			}).Error; uerr != nil {
			return 0, 0, uerr
		}
		return 0, 1, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, err
	}

	now := s.clock.Now()
	product := productdomain.Product{
		ID:               genID.Generate(),
		Brand:            brand,
		Model:            model,
		SKU:              skuFromTitle(brand, model),
		ShopifyProductID: remoteID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Warn("remote product collides with local sku",
				zap.String("sku", product.SKU),
				zap.String("remote_id", remoteID),
			)
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return 1, 0, nil
}

func (s *Syncer) markSynced(ctx context.Context, id snowflake.ID, variantID, inventoryItemID string) {
	err := s.db.WithContext(ctx).Model(&unitdomain.InventoryUnit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"shopify_variant_id":        variantID,
			"shopify_inventory_item_id": inventoryItemID,
			"sync_status":               unitdomain.SyncSynced,
			"sync_error":                "",
			"sync_attempts":             gorm.Expr("sync_attempts + 1"),
			"updated_at":                s.clock.Now(),
		}).Error
	if err != nil {
		s.log.Error("failed to record sync success", zap.Error(err))
	}
}

func (s *Syncer) markError(ctx context.Context, id snowflake.ID, message string) {
	err := s.db.WithContext(ctx).Model(&unitdomain.InventoryUnit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":   unitdomain.SyncError,
			"sync_error":    message,
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
			"updated_at":    s.clock.Now(),
		}).Error
	if err != nil {
		s.log.Error("failed to record sync error", zap.Error(err))
	}
}

func (s *Syncer) markGroupError(ctx context.Context, units []unitdomain.InventoryUnit, message string) {
	for _, unit := range units {
		s.markError(ctx, unit.ID, message)
		s.meter.RecordUnitSync("error")
	}
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func defaultIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Default"
	}
	return value
}

func skuFromTitle(brand, model string) string {
	return strings.ToUpper(slug.Make(brand + " " + model))
}
