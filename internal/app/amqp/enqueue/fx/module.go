package fx

import (
	"go.uber.org/fx"

	"product-image-miner/internal/app/amqp/enqueue"
	"product-image-miner/internal/router"
)

// Module expects the AMQP channel from amqpclient.NewAMQP to be provided
// by the application.
var Module = fx.Options(
	fx.Provide(router.AsRoute(enqueue.NewHandler)),
)
