package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/mkoziy/antigen/sequencing/internal/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database backend.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// Validate checks the driver name and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case "", DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("database dsn is required")
	}
	return nil
}

// NewDB opens the configured database with optional query logging.
func NewDB(cfg Config) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = openPostgres(cfg.DSN)
	default:
		db, err = openSQLite(cfg.DSN)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	db.RegisterModel((*models.SequencingRunResultsNanobody)(nil))
	return db, nil
}

func openSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	// In-memory databases exist per connection.
	if strings.Contains(dsn, ":memory:") {
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// Write-ahead logging lets corpus scans read while an upload commits.
	if _, err := db.Exec(`
        PRAGMA journal_mode = WAL;
        PRAGMA synchronous = NORMAL;
        PRAGMA foreign_keys = ON;
        PRAGMA busy_timeout = 5000;
        PRAGMA cache_size = -64000;
    `); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
