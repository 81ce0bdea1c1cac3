package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// SQLiteBusyTimeoutMS is how long a sqlite connection waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with optimized settings.
// Pragmas are carried in the DSN so every pooled connection gets them.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "driver", DriverSQLite)
	}
	db, err := sqlx.Open(DriverSQLite, sqliteDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&journalMode); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"journal_mode", journalMode,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenPostgres connects through the pgx stdlib driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "driver", DriverPostgres)
	}
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize postgres connection")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	if logger != nil {
		logger.Infow("Database opened successfully", "driver", DriverPostgres)
	}
	return db, nil
}

// Connect opens the database selected by driver: a file path for sqlite3,
// a connection string for pgx. Migrations are applied before returning.
func Connect(ctx context.Context, driver, target string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		db, err = Open(target, logger)
	case DriverPostgres:
		db, err = OpenPostgres(ctx, target, logger)
	default:
		return nil, errors.WithHint(
			errors.Newf("unsupported database driver %q", driver),
			"use sqlite3 or pgx")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driverName(driver))
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}

// OpenWithMigrations opens a sqlite database and applies all pending migrations.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	return Connect(context.Background(), DriverSQLite, path, logger)
}

// Wrap adapts an existing *sql.DB, such as a sqlmock connection, to sqlx.
func Wrap(db *sql.DB, driver string) *sqlx.DB {
	return sqlx.NewDb(db, driverName(driver))
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

func sqliteDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(SQLiteBusyTimeoutMS))
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}
