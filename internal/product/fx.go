package product

import (
	"github.com/spokeworks/chainline/internal/product/repository"
	"github.com/spokeworks/chainline/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
