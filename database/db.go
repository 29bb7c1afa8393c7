package database

import (
	"database/sql"
	"fmt"
	"time"

	"catalog-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// InitDB opens the lib/pq pool, applies pending migrations and wraps the pool
// in GORM. The returned *sql.DB is the one GORM uses; close it on shutdown.
func InitDB(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, *sql.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(sqlDB, cfg.Name, logger); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	db, err := Open(sqlDB, logger)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	logger.Info("Database connection established", zap.String("database", cfg.Name))
	return db, sqlDB, nil
}

// Open wraps an existing connection pool in GORM.
func Open(sqlDB *sql.DB, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 NewGormLogger(logger),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	return db, nil
}
