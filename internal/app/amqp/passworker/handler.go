package passworker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/internal/passes"
	"product-image-miner/internal/pipeline"
)

type passRunner interface {
	Run(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error)
}

type PassHandler struct {
	runner   passRunner
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

type NewPassHandlerParams struct {
	fx.In

	Runner *passes.Runner
	Logger *zap.SugaredLogger
}

func NewPassHandler(p NewPassHandlerParams) *PassHandler {
	return &PassHandler{
		runner:   p.Runner,
		validate: validator.New(),
		logger:   p.Logger,
	}
}

// Handle runs the requested pass to completion. A request that arrives while
// another pass is running is acknowledged and dropped; the running pass
// already covers it.
func (h *PassHandler) Handle(ctx context.Context, msg PassRequestedEnvelope) error {
	if strings.TrimSpace(msg.EventName) != "" && msg.EventName != EventPassRequested {
		return fmt.Errorf("unexpected event_name: %s", msg.EventName)
	}
	if err := h.validate.Struct(msg.Data); err != nil {
		return fmt.Errorf("invalid pass request: %w", err)
	}

	pass, err := passes.ParsePass(msg.Data.Pass)
	if err != nil {
		return err
	}

	h.logger.Infow("pass_request_started", "event_id", msg.EventID, "pass", pass)
	sum, err := h.runner.Run(ctx, pass)
	if errors.Is(err, passes.ErrBusy) {
		h.logger.Warnw("pass_request_skipped_busy", "event_id", msg.EventID, "pass", pass)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s pass: %w", pass, err)
	}

	h.logger.Infow("pass_request_finished",
		"event_id", msg.EventID,
		"pass", pass,
		"run_id", sum.RunID,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"interrupted", sum.Interrupted,
	)
	return nil
}
