package pass

import (
	"context"
	"errors"
	"strings"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/internal/passes"
	"product-image-miner/internal/pipeline"
)

const PassRequestedEventName = "images/pass.requested"

type PassRequestedEventData struct {
	// Pass is "batch" or "retry". Scheduled runs carry no data and retry.
	Pass string `json:"pass,omitempty"`
}

type RunResult struct {
	Skipped string            `json:"skipped,omitempty"`
	Summary *pipeline.Summary `json:"summary,omitempty"`
}

type passRunner interface {
	Run(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error)
}

type PassFunction struct {
	runner passRunner
	logger *zap.SugaredLogger
}

type NewPassFunctionParams struct {
	fx.In

	Runner *passes.Runner
	Logger *zap.SugaredLogger
}

func NewPassFunction(p NewPassFunctionParams) *PassFunction {
	return &PassFunction{runner: p.Runner, logger: p.Logger}
}

func (f *PassFunction) Handle(ctx context.Context, input inngestgo.Input[PassRequestedEventData]) (any, error) {
	p, err := resolvePass(input.Event.Data)
	if err != nil {
		return nil, inngestgo.NoRetryError(err)
	}

	res, err := step.Run(ctx, "run-pass", func(ctx context.Context) (RunResult, error) {
		f.logger.Infow("inngest_step", "step", "run-pass", "pass", p)
		return f.run(ctx, p)
	})
	if err != nil {
		return nil, inngestgo.NoRetryError(err)
	}
	return res, nil
}

func resolvePass(data PassRequestedEventData) (pipeline.Pass, error) {
	raw := strings.ToLower(strings.TrimSpace(data.Pass))
	if raw == "" {
		return pipeline.PassRetry, nil
	}
	return passes.ParsePass(raw)
}

func (f *PassFunction) run(ctx context.Context, p pipeline.Pass) (RunResult, error) {
	sum, err := f.runner.Run(ctx, p)
	if errors.Is(err, passes.ErrBusy) {
		f.logger.Warnw("inngest_pass_skipped_busy", "pass", p)
		return RunResult{Skipped: "busy"}, nil
	}
	if err != nil {
		f.logger.Errorw("inngest_step_failed", "step", "run-pass", "pass", p, "err", err)
		return RunResult{}, err
	}

	f.logger.Infow("inngest_pass_finished",
		"pass", p,
		"run_id", sum.RunID,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
	)
	return RunResult{Summary: &sum}, nil
}
