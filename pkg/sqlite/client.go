// Package sqlite opens an embedded modernc.org/sqlite database for the local
// term-vector store.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
)

// Client holds an open SQLite handle.
type Client struct {
	DB   *sql.DB
	path string
}

// New opens (creating if needed) the database at cfg.Path in WAL mode.
func New(cfg config.SQLiteConfig) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// single connection; the exporter is the only writer
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database %s: %w", cfg.Path, err)
	}
	return &Client{DB: db, path: cfg.Path}, nil
}

// Path returns the database file path.
func (c *Client) Path() string {
	return c.path
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.DB.Close()
}
