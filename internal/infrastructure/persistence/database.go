package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/customer-ledger/internal/infrastructure/config"
	"github.com/erp/customer-ledger/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Database wraps the gorm handle shared by the ledger repositories
type Database struct {
	DB *gorm.DB
}

// NewDatabase connects to the PostgreSQL database described by cfg.
func NewDatabase(cfg *config.DatabaseConfig, zapLogger *zap.Logger) (*Database, error) {
	return Open(postgres.Open(cfg.DSN()), cfg, zapLogger)
}

// Open connects through dialector, sizes the pool from cfg and pings once.
// SQL is logged through zap at cfg.LogLevel, with statements slower than
// cfg.SlowThreshold raised to warnings.
func Open(dialector gorm.Dialector, cfg *config.DatabaseConfig, zapLogger *zap.Logger) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(zapLogger,
			logger.MapGormLogLevel(cfg.LogLevel),
			logger.WithSlowThreshold(cfg.SlowThreshold),
		),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{DB: db}
	sqlDB, err := d.sqlDB()
	if err != nil {
		return nil, err
	}
	configurePool(sqlDB, cfg)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return d, nil
}

// configurePool applies cfg; zero connection counts keep the driver defaults
func configurePool(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

func (d *Database) sqlDB() (*sql.DB, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB, nil
}

// Close closes the pool.
func (d *Database) Close() error {
	sqlDB, err := d.sqlDB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether a connection can be established before ctx expires.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.sqlDB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns a snapshot of the pool.
func (d *Database) Stats() (sql.DBStats, error) {
	sqlDB, err := d.sqlDB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}
