// Package database provides the relational session store connection
// (PostgreSQL or SQLite) and migration utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
	_ "modernc.org/sqlite"             // Register sqlite driver for database/sql
)

// Client wraps the pooled connection together with its SQL dialect.
type Client struct {
	db      *stdsql.DB
	dialect string
}

// DB returns the underlying database connection for health checks and direct queries
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// Dialect returns dialect.Postgres or dialect.SQLite.
func (c *Client) Dialect() string {
	return c.dialect
}

// SQL returns a query builder for the client's dialect.
func (c *Client) SQL() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClientFromDB wraps an existing connection (useful for testing)
func NewClientFromDB(db *stdsql.DB, dialectName string) *Client {
	return &Client{db: db, dialect: dialectName}
}

// NewClient creates a new database client with connection pooling and migrations
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := stdsql.Open(driverName(cfg.Dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db, dialect: cfg.Dialect}, nil
}

func driverName(d string) string {
	if d == dialect.SQLite {
		return "sqlite"
	}
	return "pgx"
}
