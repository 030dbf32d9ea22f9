package fx

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	appmetrics "product-image-miner/internal/app/metrics"
	"product-image-miner/internal/metrics"
	"product-image-miner/internal/router"
)

// Module provides the pipeline metrics and, for HTTP apps, the /metrics
// route. Workers include CoreModule only.
var Module = fx.Options(
	CoreModule,
	fx.Provide(router.AsRoute(appmetrics.NewHandler)),
)

var CoreModule = fx.Options(
	fx.Provide(
		metrics.NewRegistry,
		func(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) },
	),
)
