package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite-backed store at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc's driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	s, err := NewSQLStore(db, DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
