package serial

import "go.uber.org/fx"

var Module = fx.Module("serial",
	fx.Provide(New),
)
