// Package passes builds the image pipeline from configuration and makes sure
// only one pass runs at a time.
package passes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/cache"
	"product-image-miner/config"
	"product-image-miner/internal/fetcher"
	"product-image-miner/internal/ledger"
	"product-image-miner/internal/metrics"
	"product-image-miner/internal/output"
	"product-image-miner/internal/pipeline"
	"product-image-miner/internal/source"
)

const lockKey = "images:pass:lock"

// ErrBusy is returned when another pass is already running.
var ErrBusy = errors.New("another pass is running")

// ParsePass accepts "batch" and "retry".
func ParsePass(raw string) (pipeline.Pass, error) {
	switch p := pipeline.Pass(raw); p {
	case pipeline.PassBatch, pipeline.PassRetry:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pass %q (want batch or retry)", raw)
	}
}

type Runner struct {
	mu      sync.Mutex
	svc     *pipeline.Service
	output  output.Collection
	ledger  ledger.Store
	source  source.Source
	redis   *redis.Client
	lockTTL time.Duration
	logger  *zap.SugaredLogger
}

type NewRunnerParams struct {
	fx.In

	Cfg      *config.Config
	Logger   *zap.SugaredLogger
	Redis    *redis.Client    `optional:"true"`
	SQLite   *sqlx.DB         `name:"sqlite" optional:"true"`
	Postgres *sqlx.DB         `name:"postgres" optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

func NewRunner(p NewRunnerParams) (*Runner, error) {
	out, err := NewCollection(p.Cfg, p.SQLite, p.Postgres)
	if err != nil {
		return nil, err
	}
	store, err := NewLedger(p.Cfg, p.Redis)
	if err != nil {
		return nil, err
	}

	fopts := fetcher.OptionsFromConfig(p.Cfg, p.Logger)
	if p.Metrics != nil {
		fopts.Observer = p.Metrics
	}

	var observer pipeline.Observer
	if p.Metrics != nil {
		observer = p.Metrics
	}

	return &Runner{
		svc: pipeline.NewService(pipeline.Options{
			Processor: pipeline.NewProcessor(fetcher.New(fopts), p.Cfg.Fetch.MediaType, p.Logger),
			Output:    out,
			Ledger:    store,
			Logger:    p.Logger,
			Observer:  observer,
		}),
		output:  out,
		ledger:  store,
		source:  source.NewDir(p.Cfg.Pipeline.InputDir, p.Logger),
		redis:   p.Redis,
		lockTTL: p.Cfg.Pipeline.LockTTL,
		logger:  p.Logger,
	}, nil
}

// NewCollection picks the output destination named by the pipeline config.
func NewCollection(cfg *config.Config, sqlite, postgres *sqlx.DB) (output.Collection, error) {
	pc := cfg.Pipeline
	switch pc.OutputBackend {
	case config.OutputBackendSQLite:
		if sqlite == nil {
			return nil, fmt.Errorf("output backend sqlite requires TURSO_SQLITE_DSN or TURSO_SQLITE_PATH")
		}
		return output.NewSQLTable(sqlite, "sqlite"), nil
	case config.OutputBackendPostgres:
		if postgres == nil {
			return nil, fmt.Errorf("output backend postgres requires DB_HOST and DB_NAME")
		}
		return output.NewSQLTable(postgres, "postgres"), nil
	case config.OutputBackendFile, "":
		if pc.OutputFormat == config.OutputFormatNDJSON {
			return output.NewNDJSONFile(pc.OutputFile, pc.SyncWrites), nil
		}
		return output.NewArrayFile(pc.OutputFile, pc.SyncWrites), nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", pc.OutputBackend)
	}
}

func NewLedger(cfg *config.Config, client *redis.Client) (ledger.Store, error) {
	pc := cfg.Pipeline
	switch pc.LedgerBackend {
	case config.LedgerBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("ledger backend redis requires REDIS_HOST")
		}
		return ledger.NewRedis(client, pc.LedgerKey), nil
	case config.LedgerBackendFile, "":
		return ledger.NewFile(pc.LedgerFile), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", pc.LedgerBackend)
	}
}

func (r *Runner) Ledger() ledger.Store       { return r.ledger }
func (r *Runner) Output() output.Collection  { return r.output }
func (r *Runner) Source() source.Source      { return r.source }
func (r *Runner) Service() *pipeline.Service { return r.svc }

// Run executes one pass over the configured input directory.
func (r *Runner) Run(ctx context.Context, pass pipeline.Pass) (pipeline.Summary, error) {
	return r.RunWith(ctx, pass, r.source)
}

// RunWith executes one pass over src. It returns ErrBusy without waiting when
// a pass is already running in this process or, with Redis configured, in
// any other process.
func (r *Runner) RunWith(ctx context.Context, pass pipeline.Pass, src source.Source) (pipeline.Summary, error) {
	if !r.mu.TryLock() {
		return pipeline.Summary{Pass: pass}, ErrBusy
	}
	defer r.mu.Unlock()

	if r.redis != nil {
		lock, err := cache.Acquire(ctx, r.redis, lockKey, r.lockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return pipeline.Summary{Pass: pass}, ErrBusy
		}
		if err != nil {
			return pipeline.Summary{Pass: pass}, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warnw("pass_lock_release_failed", "err", err)
			}
		}()
	}

	switch pass {
	case pipeline.PassBatch:
		return r.svc.RunBatch(ctx, src)
	case pipeline.PassRetry:
		return r.svc.Retry(ctx, src)
	default:
		return pipeline.Summary{Pass: pass}, fmt.Errorf("unknown pass %q", pass)
	}
}
