package fx

import (
	"go.uber.org/fx"

	"product-image-miner/internal/app/health"
	"product-image-miner/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(health.NewHandler)),
)
