// Package dal is the data access layer. Files correspond to SQL tables;
// each exposes a small struct implementing one of the core store ports.
package dal

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqlFiles embed.FS

// Open opens the sqlite database, creating the file and schema if needed.
// An empty path picks the default location under the XDG data dir.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = filepath.Join(xdg.DataHome, "ring", "ring.sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	schema, _ := sqlFiles.ReadFile("schema.sql")
	if _, err := db.Exec(string(schema)); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return db, nil
}
