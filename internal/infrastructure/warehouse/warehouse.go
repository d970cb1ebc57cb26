package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // SQLite driver for local catalogs

	"github.com/nerrad567/feederpull/internal/infrastructure/config"
)

const (
	dialTimeout     = 10 * time.Second
	pingTimeout     = 15 * time.Second
	connMaxLifetime = 5 * time.Minute

	// The catalog is read by one query per run.
	maxOpenConns = 2
)

// Open connects to the tag catalog warehouse and verifies the connection.
//
// Supported drivers:
//   - "mysql": MySQL or MariaDB over TCP
//   - "sqlite3": a local catalog file, opened read-only
//
// Parameters:
//   - ctx: Context bounding the connectivity check
//   - cfg: Warehouse section of config.yaml
//
// Returns:
//   - *sql.DB: Connection pool; the caller must Close it
//   - error: ErrUnsupportedDriver, ErrCatalogNotFound, or a wrapped
//     ErrConnectionFailed
func Open(ctx context.Context, cfg config.WarehouseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "mysql":
		db, err = openMySQL(cfg)
	case "sqlite3":
		db, err = openSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return db, nil
}

func openMySQL(cfg config.WarehouseConfig) (*sql.DB, error) {
	connector, err := mysql.NewConnector(mysqlConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return sql.OpenDB(connector), nil
}

// mysqlConfig maps the warehouse section onto a driver config.
func mysqlConfig(cfg config.WarehouseConfig) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.DBName
	mc.Timeout = dialTimeout
	mc.ParseTime = true
	if len(cfg.Params) > 0 {
		mc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}
	return mc
}

// openSQLite opens an existing catalog file read-only. go-sqlite3 would
// otherwise create an empty database for a mistyped path.
func openSQLite(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return db, nil
}
