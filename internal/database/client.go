// Package database is the PostgreSQL store for agent sessions, the event
// log, viewer chat and the art gallery.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds database configuration.
type Config struct {
	URL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// HydrateThoughts is how many recent events are scanned for thoughts
	// when a viewer first opens an agent.
	HydrateThoughts int
}

// Client wraps the connection pool.
type Client struct {
	db              *stdsql.DB
	hydrateThoughts int
}

// DB returns the underlying pool.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// NewClientFromDB wraps an open pool without running migrations.
func NewClientFromDB(db *stdsql.DB, hydrateThoughts int) *Client {
	if hydrateThoughts <= 0 {
		hydrateThoughts = 30
	}
	return &Client{db: db, hydrateThoughts: hydrateThoughts}
}

// NewClient opens the pool, checks connectivity and applies migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := stdsql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewClientFromDB(db, cfg.HydrateThoughts), nil
}

// Migrate applies the embedded migrations.
func Migrate(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// m.Close would also close the shared *sql.DB through the driver.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// HealthStatus is database connectivity plus pool statistics.
type HealthStatus struct {
	Status          string `json:"status"`
	ResponseTime    int64  `json:"response_time_ms"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
	MaxOpenConns    int    `json:"max_open_conns"`
}

// Health pings the database and reports pool statistics.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	stats := c.db.Stats()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start).Milliseconds(),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		MaxOpenConns:    stats.MaxOpenConnections,
	}, nil
}
