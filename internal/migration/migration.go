package migration

import (
	"context"

	invoicedomain "github.com/spokeworks/chainline/internal/invoice/domain"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/internal/serial"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	webhookdomain "github.com/spokeworks/chainline/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

// Run applies the schema and seeds the serial counter before the rest
// of the app starts taking traffic.
func Run(db *gorm.DB, log *zap.Logger, allocator *serial.Allocator) error {
	err := db.AutoMigrate(
		&serial.Counter{},
		&productdomain.Product{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&unitdomain.InventoryUnit{},
		&webhookdomain.WebhookLog{},
	)
	if err != nil {
		log.Error("schema migration failed", zap.Error(err))
		return err
	}

	if err := allocator.EnsureCounter(context.Background()); err != nil {
		log.Error("serial counter seed failed", zap.Error(err))
		return err
	}

	log.Info("schema migrated")
	return nil
}
