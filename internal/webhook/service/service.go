package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/config"
	"github.com/spokeworks/chainline/internal/observability/logger"
	"github.com/spokeworks/chainline/internal/observability/metrics"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/internal/webhook/domain"
	"github.com/spokeworks/chainline/pkg/db"
	"github.com/spokeworks/chainline/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Units unitdomain.Service
	Meter *metrics.Metrics `optional:"true"`
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	units  unitdomain.Service
	meter  *metrics.Metrics
	prefix string
}

func New(p Params) domain.Service {
	return &service{
		db:     p.DB,
		log:    p.Log.Named("webhook.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		units:  p.Units,
		meter:  p.Meter,
		prefix: p.Cfg.SerialPrefix + "-",
	}
}

type orderPayload struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	LineItems []struct {
		SKU      string `json:"sku"`
		Price    string `json:"price"`
		Quantity int    `json:"quantity"`
	} `json:"line_items"`
}

func (s *service) HandleOrderCreate(ctx context.Context, webhookID string, payload []byte) (*domain.HandleResult, error) {
	log := logger.WithContext(ctx, s.log)

	if strings.TrimSpace(webhookID) == "" {
		return nil, domain.ErrMissingWebhookID
	}

	now := s.clock.Now()
	entry := domain.WebhookLog{
		ID:        s.genID.Generate(),
		WebhookID: webhookID,
		Topic:     "orders/create",
		Status:    domain.StatusError,
		Error:     "interrupted",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			log.Info("duplicate webhook delivery ignored", zap.String("webhook_id", webhookID))
			return s.duplicateResult(ctx, webhookID)
		}
		return nil, err
	}

	result := s.process(ctx, log, payload)

	detail, _ := json.Marshal(map[string]interface{}{
		"units_sold":    result.UnitsSold,
		"discrepancies": result.Discrepancies,
	})
	errMsg := ""
	if result.Status == domain.StatusError {
		errMsg = "order payload could not be processed"
	}
	if err := s.db.WithContext(ctx).Model(&domain.WebhookLog{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":     result.Status,
			"detail":     datatypes.JSON(detail),
			"error":      errMsg,
			"updated_at": s.clock.Now(),
		}).Error; err != nil {
		log.Error("failed to update webhook log", zap.Error(err))
	}

	s.meter.RecordWebhook(result.Status)
	return result, nil
}

func (s *service) process(ctx context.Context, log *zap.Logger, payload []byte) *domain.HandleResult {
	result := &domain.HandleResult{Status: domain.StatusProcessed}

	var order orderPayload
	if err := json.Unmarshal(payload, &order); err != nil {
		log.Warn("unparseable order payload", zap.Error(err))
		result.Status = domain.StatusError
		return result
	}

	orderID := order.ID.String()
	if order.Name != "" {
		orderID = order.Name
	}

	for _, item := range order.LineItems {
		sku := strings.TrimSpace(item.SKU)
		if !strings.HasPrefix(sku, s.prefix) {
			continue
		}

		salePrice, err := money.FromDecimalString(item.Price)
		if err != nil {
			salePrice = 0
		}

		sold, err := s.units.MarkSoldBySerial(ctx, unitdomain.MarkSoldRequest{
			Serial:    sku,
			OrderID:   orderID,
			SalePrice: salePrice,
		})
		switch {
		case errors.Is(err, unitdomain.ErrNotFound):
			log.Warn("sold serial not found locally",
				zap.String("serial", sku), zap.String("order_id", orderID))
			result.Discrepancies = append(result.Discrepancies, domain.Discrepancy{
				SKU: sku, Reason: "not_found",
			})
		case errors.Is(err, unitdomain.ErrAlreadySold):
			log.Warn("serial already sold",
				zap.String("serial", sku), zap.String("order_id", orderID))
			result.Discrepancies = append(result.Discrepancies, domain.Discrepancy{
				SKU: sku, Reason: "already_sold",
			})
		case err != nil:
			log.Error("failed to mark unit sold",
				zap.String("serial", sku), zap.Error(err))
			result.Discrepancies = append(result.Discrepancies, domain.Discrepancy{
				SKU: sku, Reason: fmt.Sprintf("error: %v", err),
			})
		default:
			result.UnitsSold++
			if sold.FromStatus != unitdomain.StatusAvailable {
				log.Warn("unit sold from unexpected status",
					zap.String("serial", sku),
					zap.String("from_status", sold.FromStatus),
				)
				result.Discrepancies = append(result.Discrepancies, domain.Discrepancy{
					SKU: sku, Reason: "sold_from_" + sold.FromStatus,
				})
			}
		}
	}

	if len(result.Discrepancies) > 0 {
		result.Status = domain.StatusPartial
	}
	return result
}

func (s *service) duplicateResult(ctx context.Context, webhookID string) (*domain.HandleResult, error) {
	var existing domain.WebhookLog
	if err := s.db.WithContext(ctx).
		First(&existing, "webhook_id = ?", webhookID).Error; err != nil {
		return nil, err
	}
	return &domain.HandleResult{Status: existing.Status, Duplicate: true}, nil
}
