package fx

import (
	"strings"

	"github.com/inngest/inngestgo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/config"
	"product-image-miner/internal/app/inngest"
	"product-image-miner/internal/app/inngest/pass"
	pkginngest "product-image-miner/internal/pkg/inngest"
	"product-image-miner/internal/router"
)

var Module = fx.Options(
	fx.Provide(
		pkginngest.NewInngestClient,
		pass.NewPassFunction,
		router.AsRoute(inngest.NewInngestHandler),
	),
	fx.Invoke(registerFunctions),
)

func registerFunctions(
	cfg *config.Config,
	client inngestgo.Client,
	passFunc *pass.PassFunction,
	logger *zap.SugaredLogger,
) error {
	if !pkginngest.Enabled(cfg) {
		logger.Infow("inngest_disabled", "reason", "missing INNGEST_APP_ID")
		return nil
	}

	_, err := inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{
			ID:      "images-pass",
			Retries: inngestgo.IntPtr(0),
		},
		inngestgo.EventTrigger(pass.PassRequestedEventName, nil),
		passFunc.Handle,
	)
	if err != nil {
		logger.Errorw("inngest_function_create_failed", "function", "images-pass", "err", err)
		return err
	}

	cron := strings.TrimSpace(cfg.Inngest.RetryCron)
	if cron != "" {
		_, err := inngestgo.CreateFunction(
			client,
			inngestgo.FunctionOpts{
				ID:      "images-retry-scheduled",
				Retries: inngestgo.IntPtr(0),
			},
			inngestgo.CronTrigger(cron),
			passFunc.Handle,
		)
		if err != nil {
			logger.Errorw("inngest_function_create_failed", "function", "images-retry-scheduled", "err", err)
			return err
		}
	}

	logger.Infow("inngest_enabled",
		"path", pkginngest.ServePath(cfg),
		"event", pass.PassRequestedEventName,
		"retry_cron", cron,
	)
	return nil
}
