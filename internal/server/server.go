package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spokeworks/chainline/internal/config"
	"github.com/spokeworks/chainline/internal/invoice"
	invoicedomain "github.com/spokeworks/chainline/internal/invoice/domain"
	"github.com/spokeworks/chainline/internal/migration"
	"github.com/spokeworks/chainline/internal/observability"
	obsmiddleware "github.com/spokeworks/chainline/internal/observability/logger"
	obsmetrics "github.com/spokeworks/chainline/internal/observability/metrics"
	"github.com/spokeworks/chainline/internal/product"
	productdomain "github.com/spokeworks/chainline/internal/product/domain"
	"github.com/spokeworks/chainline/internal/report"
	reportdomain "github.com/spokeworks/chainline/internal/report/domain"
	"github.com/spokeworks/chainline/internal/serial"
	"github.com/spokeworks/chainline/internal/shopify"
	"github.com/spokeworks/chainline/internal/unit"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"github.com/spokeworks/chainline/internal/webhook"
	webhookdomain "github.com/spokeworks/chainline/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	serial.Module,
	migration.Module,
	product.Module,
	unit.Module,
	invoice.Module,
	shopify.Module,
	webhook.Module,
	report.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, registry)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	productSvc productdomain.Service
	unitSvc    unitdomain.Service
	invoiceSvc invoicedomain.Service
	webhookSvc webhookdomain.Service
	reportSvc  reportdomain.Service
	allocator  *serial.Allocator
	syncer     *shopify.Syncer
	genID      *snowflake.Node
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	ProductSvc productdomain.Service
	UnitSvc    unitdomain.Service
	InvoiceSvc invoicedomain.Service
	WebhookSvc webhookdomain.Service
	ReportSvc  reportdomain.Service
	Allocator  *serial.Allocator
	Syncer     *shopify.Syncer
	GenID      *snowflake.Node
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		productSvc: p.ProductSvc,
		unitSvc:    p.UnitSvc,
		invoiceSvc: p.InvoiceSvc,
		webhookSvc: p.WebhookSvc,
		reportSvc:  p.ReportSvc,
		allocator:  p.Allocator,
		syncer:     p.Syncer,
		genID:      p.GenID,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Products --------
	api.GET("/products", s.ListProducts)
	api.POST("/products", s.CreateProduct)
	api.GET("/products/:id", s.GetProductByID)
	api.PATCH("/products/:id", s.UpdateProduct)
	api.DELETE("/products/:id", s.DeleteProduct)

	// -------- Supplier Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id/charges", s.UpdateInvoiceCharges)
	api.PUT("/invoices/:id/lines/:lineId/match", s.MatchInvoiceLine)
	api.GET("/invoices/:id/preview", s.PreviewInvoice)
	api.POST("/invoices/:id/approve", s.ApproveInvoice)
	api.POST("/invoices/:id/reject", s.RejectInvoice)

	// -------- Inventory Units --------
	api.GET("/units", s.ListUnits)
	api.POST("/units", s.CreateUnit)
	api.GET("/units/:id", s.GetUnitByID)
	api.POST("/units/:id/receive", s.ReceiveUnit)
	api.POST("/units/:id/status", s.SetUnitStatus)
	api.POST("/units/:id/retry-sync", s.RetryUnitSync)
	api.DELETE("/units/:id", s.DeleteUnit)

	// -------- Serials --------
	api.GET("/serials/peek", s.PeekSerials)
	api.POST("/serials/next", s.SetNextSerial)

	// -------- Reports --------
	api.GET("/reports/inventory", s.InventoryReport)
	api.GET("/reports/profit", s.ProfitReport)
	api.POST("/reports/reconcile", s.ReconcileReport)

	// -------- Catalog sync --------
	api.POST("/sync/catalog", s.SyncCatalog)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/shopify/orders-create", s.HandleShopifyOrderCreate)
}
