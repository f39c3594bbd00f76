// Package persistence holds the GORM stores of synchronized records, their
// cache decorators and the uplink outbox.
//
// Stores publish EntitySaved and EntityDeleted only for writes made with notify
// set. The sync processors apply changes that came from the cloud and always
// pass notify=false, so those changes are never echoed back over the link. The
// notify path exists for writes that originate locally; no such writer is wired
// in the server today, so nothing subscribes to these events there.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/edgesync/backend/internal/infrastructure/config"
	"github.com/edgesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the edge store: a GORM handle and the pool underneath it.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// DatabaseOption adjusts the GORM settings before the store is opened
type DatabaseOption func(*gorm.Config)

// WithGormLogger routes GORM logging through l
func WithGormLogger(l logger.Interface) DatabaseOption {
	return func(c *gorm.Config) { c.Logger = l }
}

var dialectors = map[string]func(dsn string) gorm.Dialector{
	"postgres": postgres.Open,
	"sqlite":   sqlite.Open,
}

// NewDatabase opens and pings the store selected by cfg.Driver. A sqlite
// store keeps one connection that never expires, so writers queue in the
// pool and an in-memory database outlives idle periods.
func NewDatabase(cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	open, ok := dialectors[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	gormCfg := &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
	for _, opt := range opts {
		opt(gormCfg)
	}
	gdb, err := gorm.Open(open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	pool, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	lifetime, idleTime := cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime
	if driver == "sqlite" {
		maxOpen, maxIdle, lifetime, idleTime = 1, 1, 0, 0
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(lifetime)
	pool.SetConnMaxIdleTime(idleTime)

	db := &Database{DB: gdb, sql: pool}
	if err := db.Ping(context.Background()); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return db, nil
}

// SQL returns the connection pool, for migrations and pool metrics.
func (d *Database) SQL() *sql.DB {
	return d.sql
}

// AutoMigrate builds the schema from the models. It serves sqlite and tests;
// postgres deployments apply the SQL migrations.
func (d *Database) AutoMigrate() error {
	if err := d.DB.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks that the store answers.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.sql.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (d *Database) Stats() sql.DBStats {
	return d.sql.Stats()
}

// Close closes the pool.
func (d *Database) Close() error {
	return d.sql.Close()
}
