package fx

import (
	"product-image-miner/internal/app/productimages"
	"product-image-miner/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"productimages",
	fx.Provide(router.AsRoute(productimages.NewGetByIDHandler)),
)
