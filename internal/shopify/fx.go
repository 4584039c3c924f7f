package shopify

import (
	"context"

	reportdomain "github.com/spokeworks/chainline/internal/report/domain"
	unitdomain "github.com/spokeworks/chainline/internal/unit/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("shopify",
	fx.Provide(NewClient),
	fx.Provide(NewSyncer),
	fx.Provide(NewWorker),
	fx.Provide(func(w *Worker) unitdomain.SyncQueue { return w }),
	fx.Provide(func(s *Syncer) unitdomain.CatalogSyncer { return s }),
	fx.Provide(func(s *Syncer) reportdomain.VariantLister { return s }),
	fx.Invoke(registerWorker),
)

func registerWorker(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return nil
		},
	})
}
