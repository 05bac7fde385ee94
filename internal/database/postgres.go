package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PoolConfig bounds the connections held by the gorm pool.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// PoolFor sizes the pool so background grading runs never starve HTTP
// requests of connections.
func PoolFor(gradingWorkers int) PoolConfig {
	if gradingWorkers < 1 {
		gradingWorkers = 1
	}
	return PoolConfig{
		MaxOpen:     gradingWorkers + 20,
		MaxIdle:     gradingWorkers + 2,
		MaxLifetime: 30 * time.Minute,
	}
}

// ConnectPostgres opens the store and applies pool limits. Timestamps are
// generated in UTC.
func ConnectPostgres(dsn string, pool PoolConfig) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres pool: %w", err)
	}
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	}

	return db, nil
}
