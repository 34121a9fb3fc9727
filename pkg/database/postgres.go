package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB owns the connection pool behind the decision store
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// PoolStats is the subset of pool statistics reported by health checks
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// NewPostgresDB creates a new PostgreSQL connection pool. Pool sizing can be
// overridden in the URL with pool_max_conns and pool_min_conns.
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Decisions are small and transactions short; a modest pool is enough.
	if !strings.Contains(databaseURL, "pool_max_conns") {
		config.MaxConns = 10
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		config.MinConns = 2
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute
	config.ConnConfig.ConnectTimeout = 5 * time.Second
	config.ConnConfig.RuntimeParams["application_name"] = "groupdecide"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

// ApplySchema creates any missing tables and indexes. It is idempotent.
func (db *PostgresDB) ApplySchema(ctx context.Context) error {
	if db.Pool == nil {
		return errors.New("database pool not initialized")
	}
	if _, err := db.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ResetSchema drops every table and recreates the schema
func (db *PostgresDB) ResetSchema(ctx context.Context) error {
	if db.Pool == nil {
		return errors.New("database pool not initialized")
	}
	if _, err := db.Pool.Exec(ctx, DropSchema); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return db.ApplySchema(ctx)
}

// Stats reports pool usage
func (db *PostgresDB) Stats() PoolStats {
	if db.Pool == nil {
		return PoolStats{}
	}
	s := db.Pool.Stat()
	return PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
	}
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks the database connection
func (db *PostgresDB) Health(ctx context.Context) error {
	if db.Pool == nil {
		return errors.New("database pool not initialized")
	}
	return db.Pool.Ping(ctx)
}
