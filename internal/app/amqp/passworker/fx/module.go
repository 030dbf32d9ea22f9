package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/internal/app/amqp/passworker"
	"product-image-miner/internal/pkg/amqpclient"
)

var Module = fx.Module(
	"amqp-passworker",
	fx.Provide(
		amqpclient.NewAMQP,
		fx.Annotate(
			passworker.NewPassHandler,
			fx.As(new(passworker.Handler)),
		),
		passworker.NewConsumer,
	),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Consumer  *passworker.Consumer
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Infow("passworker_starting")
			return p.Consumer.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("passworker_stopping")
			return p.Consumer.Stop(ctx)
		},
	})
}
