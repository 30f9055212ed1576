package database

import (
	"fmt"
	"os"
	"path/filepath"

	"mn-go/internal/config"
)

// NewStoreFromConfig creates a SQLite store based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, nodeID string) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, dbFileName(nodeID)))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// DBPath returns the database file path for the given config, or "" for
// in-memory databases.
func DBPath(cfg config.DatabaseConfig, nodeID string) string {
	if cfg.Type != "sqlite" || cfg.DataDir == "" {
		return ""
	}
	return filepath.Join(cfg.DataDir, dbFileName(nodeID))
}

// dbFileName derives a file name from a node identifier such as
// "urn:node:EXAMPLE".
func dbFileName(nodeID string) string {
	name := []rune(nodeID)
	for i, r := range name {
		switch r {
		case ':', '/', '\\':
			name[i] = '_'
		}
	}
	return string(name) + ".db"
}
