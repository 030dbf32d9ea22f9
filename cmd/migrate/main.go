package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"product-image-miner/config"
	dbfx "product-image-miner/db/fx"
	"product-image-miner/db/migrations"
	appfx "product-image-miner/internal/app/fx"
)

type MigrateCmd string

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "up", "down", "status":
	default:
		_, _ = fmt.Fprintf(os.Stderr, "usage: migrate [up|down|status]\n")
		os.Exit(2)
	}

	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.CoreAppOptions,
		dbfx.Module,
		dbfx.SQLiteModule,
		fx.Supply(MigrateCmd(cmd)),
		fx.Invoke(registerMigrateHook),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type migrateHookParams struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      *config.Config
	Logger   *zap.SugaredLogger
	SQLite   *sqlx.DB `name:"sqlite" optional:"true"`
	Postgres *sqlx.DB `name:"postgres" optional:"true"`

	Cmd MigrateCmd
}

// registerMigrateHook migrates the database the pipeline writes to: postgres
// when PIPELINE_OUTPUT_BACKEND=postgres, sqlite otherwise.
func registerMigrateHook(p migrateHookParams) error {
	dialect, target, err := pickTarget(p.Cfg, p.SQLite, p.Postgres)
	if err != nil {
		return err
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			provider, err := goose.NewProvider(dialect, target.DB, migrations.FS)
			if err != nil {
				return fmt.Errorf("goose provider: %w", err)
			}

			p.Logger.Infow("goose_run_start", "cmd", string(p.Cmd), "dialect", dialect)
			switch p.Cmd {
			case "up":
				results, err := provider.Up(ctx)
				if err != nil {
					return fmt.Errorf("goose up: %w", err)
				}
				for _, r := range results {
					p.Logger.Infow("goose_migration_applied", "version", r.Source.Version, "took", r.Duration)
				}
			case "down":
				r, err := provider.Down(ctx)
				if errors.Is(err, goose.ErrNoNextVersion) {
					p.Logger.Infow("goose_nothing_to_roll_back")
					return nil
				}
				if err != nil {
					return fmt.Errorf("goose down: %w", err)
				}
				p.Logger.Infow("goose_migration_rolled_back", "version", r.Source.Version)
			case "status":
				statuses, err := provider.Status(ctx)
				if err != nil {
					return fmt.Errorf("goose status: %w", err)
				}
				for _, s := range statuses {
					fmt.Printf("%-6d %-8s %s\n", s.Source.Version, s.State, s.Source.Path)
				}
			}
			p.Logger.Infow("goose_run_done", "cmd", string(p.Cmd))
			return nil
		},
	})
	return nil
}

func pickTarget(cfg *config.Config, sqliteDB, postgresDB *sqlx.DB) (goose.Dialect, *sqlx.DB, error) {
	if cfg.Pipeline.OutputBackend == config.OutputBackendPostgres {
		if postgresDB == nil {
			return "", nil, errors.New("postgres disabled: set DB_HOST and DB_NAME")
		}
		return goose.DialectPostgres, postgresDB, nil
	}
	if sqliteDB == nil {
		return "", nil, errors.New("sqlite disabled: set TURSO_SQLITE_DSN or TURSO_SQLITE_PATH")
	}
	return goose.DialectSQLite3, sqliteDB, nil
}
