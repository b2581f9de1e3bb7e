// Package gormstore persists entries in SQL through GORM. Postgres is the
// production dialect; sqlite is used for local runs and tests.
package gormstore

import (
	"context"
	"fmt"

	"quotecollector/config"
	"quotecollector/pkg/storage"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Client struct {
	DB *gorm.DB

	notifier *storage.Notifier
}

var _ storage.Store = (*Client)(nil)

func NewClient(dialector gorm.Dialector) (*Client, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Client{DB: db, notifier: storage.NewNotifier()}, nil
}

// OpenPostgres connects to Postgres, optionally creates the DB, applies pool
// settings and runs AutoMigrate.
func OpenPostgres(cfg config.PostgresConfig, env string, createDB bool) (*Client, error) {
	if createDB {
		if err := CreateDatabase(cfg, env); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	client, err := NewClient(postgres.Open(cfg.DSN(env)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sqlDB, err := client.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := client.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

// OpenSQLite opens (or creates) a sqlite database at path and runs AutoMigrate.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*Client, error) {
	client, err := NewClient(sqlite.Open(path))
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; an in-memory DB is per connection.
	sqlDB, err := client.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := client.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

func (c *Client) AutoMigrate() error {
	if err := c.DB.AutoMigrate(&EntryRecord{}, &StateRecord{}); err != nil {
		return fmt.Errorf("auto-migrate entry tables: %w", err)
	}
	return nil
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *Client) Close() error {
	c.notifier.Close()

	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
