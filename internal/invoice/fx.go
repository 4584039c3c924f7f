package invoice

import (
	"github.com/spokeworks/chainline/internal/invoice/service"
	"github.com/spokeworks/chainline/internal/serial"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(func(a *serial.Allocator) service.SerialSource { return a }),
	fx.Provide(service.New),
)
