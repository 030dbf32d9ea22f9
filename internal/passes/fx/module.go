package fx

import (
	"go.uber.org/fx"

	"product-image-miner/internal/passes"
)

var Module = fx.Module(
	"passes",
	fx.Provide(passes.NewRunner),
)
