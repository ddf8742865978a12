package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/infra/migrations"
	"github.com/kursadbilgin/reminder-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/reminder-engine/internal/infra/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseOptions configures the connection pool and query logging.
type DatabaseOptions struct {
	Driver             string
	DSN                string
	MaxOpenConns       int
	MaxIdleConns       int
	SlowQueryThreshold time.Duration
}

// OpenDatabase connects with the configured driver and applies migrations.
func OpenDatabase(opts DatabaseOptions, logger *zap.Logger) (*gorm.DB, error) {
	gormLog := NewGormLogger(logger, opts.SlowQueryThreshold)

	var (
		db  *gorm.DB
		err error
	)

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverPostgres:
		db, err = postgresql.NewPostgres(opts.DSN, postgresql.Pool{
			MaxOpenConns: opts.MaxOpenConns,
			MaxIdleConns: opts.MaxIdleConns,
		}, gormLog)
	case DriverSQLite:
		db, err = sqlite.NewSQLite(opts.DSN, gormLog)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := migrations.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	return db, nil
}
