package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"product-image-miner/config"

	// Turso "remote only" driver (no embedded replicas)
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	// Local sqlite files.
	_ "modernc.org/sqlite"
)

var ErrSQLiteDisabled = errors.New("sqlite disabled: set TURSO_SQLITE_DSN or TURSO_SQLITE_PATH (and TURSO_SQLITE_TOKEN for remote)")

// Conn is the subset of *sqlx.DB the stores use.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

// --- disabled connection (keeps app booting, but fails fast when used) ---

type sqliteErrConnector struct{}

func (sqliteErrConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, ErrSQLiteDisabled
}
func (sqliteErrConnector) Driver() driver.Driver { return sqliteErrDriver{} }

type sqliteErrDriver struct{}

func (sqliteErrDriver) Open(string) (driver.Conn, error) { return nil, ErrSQLiteDisabled }

type disabledSQLiteConn struct {
	x *sqlx.DB
}

func newDisabledSQLiteConn() disabledSQLiteConn {
	return disabledSQLiteConn{x: sqlx.NewDb(sql.OpenDB(sqliteErrConnector{}), "sqlite")}
}

func (c disabledSQLiteConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, ErrSQLiteDisabled
}
func (c disabledSQLiteConn) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return ErrSQLiteDisabled
}
func (c disabledSQLiteConn) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return ErrSQLiteDisabled
}
func (c disabledSQLiteConn) Rebind(query string) string { return c.x.Rebind(query) }

// --- Fx output ---

type SQLiteSQLXOut struct {
	fx.Out

	DB   *sqlx.DB `name:"sqlite"`
	Conn Conn     `name:"sqlite"`
}

type NewSQLXSQLiteDBParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

// NewSQLXSQLiteDB connects to Turso remote (libsql://...) with libsql-client-go,
// or to a local sqlite file (file:... or a bare path) with modernc sqlite.
func NewSQLXSQLiteDB(p NewSQLXSQLiteDBParams) (SQLiteSQLXOut, error) {
	dsn := strings.TrimSpace(p.Cfg.Turso.DSN)
	if dsn == "" {
		dsn = strings.TrimSpace(p.Cfg.Turso.Path)
	}

	if dsn == "" {
		p.Logger.Infow("sqlite_disabled")
		return SQLiteSQLXOut{DB: nil, Conn: newDisabledSQLiteConn()}, nil
	}

	driverName := SQLiteDriverName(dsn)
	if driverName == "libsql" {
		dsn = ensureAuthTokenQuery(dsn, p.Cfg.Turso.Token)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return SQLiteSQLXOut{}, fmt.Errorf("open sqlite db: %w", err)
	}

	if driverName == "libsql" {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		// One writer for a local file avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	db.Mapper = reflectx.NewMapperFunc("db", strings.ToLower)

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()
				return fmt.Errorf("ping sqlite db: %w", err)
			}
			p.Logger.Infow("sqlite_enabled", "driver", driverName)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return SQLiteSQLXOut{DB: db, Conn: db}, nil
}

// SQLiteDriverName picks the database/sql driver for a DSN.
func SQLiteDriverName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "sqlite"
	}
	switch strings.ToLower(u.Scheme) {
	case "file", "sqlite":
		return "sqlite"
	default:
		return "libsql"
	}
}

func ensureAuthTokenQuery(dsn, token string) string {
	if token == "" {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}

	// Don’t add tokens to local sqlite/file DSNs.
	if strings.EqualFold(u.Scheme, "file") || strings.EqualFold(u.Scheme, "sqlite") {
		return dsn
	}

	q := u.Query()
	if q.Get("authToken") != "" {
		return dsn
	}

	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String()
}
