package fx

import (
	"go.uber.org/fx"

	appledger "product-image-miner/internal/app/ledger"
	"product-image-miner/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(appledger.NewHandler)),
)
