package unit

import (
	"github.com/spokeworks/chainline/internal/serial"
	"github.com/spokeworks/chainline/internal/unit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("unit.service",
	fx.Provide(func(a *serial.Allocator) service.SerialSource { return a }),
	fx.Provide(service.New),
)
