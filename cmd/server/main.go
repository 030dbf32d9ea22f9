package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	enqueuefx "product-image-miner/internal/app/amqp/enqueue/fx"
	appfx "product-image-miner/internal/app/fx"
	healthfx "product-image-miner/internal/app/health/fx"
	inngestfx "product-image-miner/internal/app/inngest/fx"
	ledgerfx "product-image-miner/internal/app/ledger/fx"
	metricsfx "product-image-miner/internal/app/metrics/fx"
	productimagesfx "product-image-miner/internal/app/productimages/fx"
	"product-image-miner/internal/pkg/amqpclient"
	routerfx "product-image-miner/internal/router/fx"
	serverfx "product-image-miner/internal/server/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.Module,
		metricsfx.Module,
		fx.Provide(amqpclient.NewAMQP),
		routerfx.CoreRouterOptions,
		serverfx.Module,
		healthfx.Module,
		ledgerfx.Module,
		productimagesfx.Module,
		inngestfx.Module,
		enqueuefx.Module,
	)

	app.Run()
}
