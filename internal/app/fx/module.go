package fx

import (
	"go.uber.org/fx"

	cachefx "product-image-miner/cache/fx"
	dbfx "product-image-miner/db/fx"
	passesfx "product-image-miner/internal/passes/fx"
)

// Module wires config, logging, every optional store and the pass runner.
// Binaries add metrics and their own transport on top.
var Module = fx.Options(
	CoreAppOptions,
	dbfx.Module,
	dbfx.SQLiteModule,
	cachefx.Module,
	passesfx.Module,
)
