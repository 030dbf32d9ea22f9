package fx

import (
	"go.uber.org/fx"

	"product-image-miner/config"
	"product-image-miner/internal/logs"
)

var CoreAppOptions = fx.Options(
	fx.Provide(
		config.NewViper,
		config.NewConfig,
		logs.NewLogger,
		logs.NewSugaredLogger,
	),
	fx.Invoke(logs.RegisterLifecycle),
)
