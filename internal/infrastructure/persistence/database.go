package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unihub/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the hub's Postgres pool.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

type Option func(*gorm.Config)

// WithLogger routes GORM query logs to l.
func WithLogger(l logger.Interface) Option {
	return func(c *gorm.Config) { c.Logger = l }
}

// GormConfig is shared by the server, tests and tooling. Repositories
// depend on TranslateError to see gorm.ErrDuplicatedKey when they lose a
// create race.
func GormConfig(opts ...Option) *gorm.Config {
	cfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewDatabase opens the pool described by cfg and pings it once.
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("open database %s/%s: %w", cfg.Host, cfg.DBName, err)
	}
	pool, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database %s/%s: %w", cfg.Host, cfg.DBName, err)
	}
	return &Database{DB: gdb, sql: pool}, nil
}

func (d *Database) Close() error { return d.sql.Close() }

// Ping backs the readiness check.
func (d *Database) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }
