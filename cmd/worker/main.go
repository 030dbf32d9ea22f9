package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	passworkerfx "product-image-miner/internal/app/amqp/passworker/fx"
	appfx "product-image-miner/internal/app/fx"
	metricsfx "product-image-miner/internal/app/metrics/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.Module,
		metricsfx.CoreModule,
		passworkerfx.Module,
	)

	app.Run()
}
