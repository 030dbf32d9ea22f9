package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"product-image-miner/config"
	appfx "product-image-miner/internal/app/fx"
	metricsfx "product-image-miner/internal/app/metrics/fx"
	"product-image-miner/internal/passes"
	"product-image-miner/internal/pipeline"
)

type passCmd struct {
	use   string
	short string
	pass  pipeline.Pass
}

var (
	passMap = passCmd{
		use:   "map",
		short: "Fetch every thumbnail into a fresh output and record failures",
		pass:  pipeline.PassBatch,
	}
	passRetry = passCmd{
		use:   "retry",
		short: "Refetch the ids recorded as failed and append the successes",
		pass:  pipeline.PassRetry,
	}
)

// pipelineFlags override the PIPELINE_* settings for one run.
type pipelineFlags struct {
	inputDir string
	output   string
	format   string
	ledger   string
}

func (f pipelineFlags) validate() error {
	switch strings.ToLower(f.format) {
	case "", config.OutputFormatArray, config.OutputFormatNDJSON:
		return nil
	default:
		return fmt.Errorf("%w: --format must be array or ndjson, got %q", errUsage, f.format)
	}
}

func (f pipelineFlags) apply(cfg *config.Config) *config.Config {
	out := *cfg
	if f.inputDir != "" {
		out.Pipeline.InputDir = f.inputDir
	}
	if f.output != "" {
		out.Pipeline.OutputFile = f.output
	}
	if f.format != "" {
		out.Pipeline.OutputFormat = strings.ToLower(f.format)
	}
	if f.ledger != "" {
		out.Pipeline.LedgerFile = f.ledger
	}
	return &out
}

func newPassCmd(rf *rootFlags, pc passCmd) *cobra.Command {
	var pf pipelineFlags

	c := &cobra.Command{
		Use:   pc.use,
		Short: pc.short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.validate(); err != nil {
				return err
			}
			sum, err := runPass(cmd.Context(), pc.pass, pf)
			if sum.RunID != "" && !rf.quiet {
				if perr := printJSON(cmd.OutOrStdout(), sum); perr != nil && err == nil {
					err = perr
				}
			}
			if err != nil && sum.Interrupted {
				return fmt.Errorf("%s pass interrupted: %w", pc.pass, err)
			}
			return err
		},
	}

	c.Flags().StringVar(&pf.inputDir, "input-dir", "", "Directory of product JSON files (default PIPELINE_INPUT_DIR)")
	c.Flags().StringVarP(&pf.output, "output", "o", "", "Output file (default PIPELINE_OUTPUT_FILE)")
	c.Flags().StringVar(&pf.format, "format", "", "Output file format: array or ndjson (default PIPELINE_OUTPUT_FORMAT)")
	c.Flags().StringVar(&pf.ledger, "ledger", "", "Failure ledger file (default PIPELINE_LEDGER_FILE)")
	return c
}

func runPass(ctx context.Context, pass pipeline.Pass, pf pipelineFlags) (pipeline.Summary, error) {
	var runner *passes.Runner
	app := fx.New(
		fx.NopLogger,
		appfx.Module,
		metricsfx.CoreModule,
		fx.Decorate(pf.apply),
		fx.Populate(&runner),
	)
	if err := app.Err(); err != nil {
		return pipeline.Summary{Pass: pass}, err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return pipeline.Summary{Pass: pass}, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return runner.Run(ctx, pass)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
