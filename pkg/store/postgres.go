package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// OpenPostgres opens a Postgres-backed store from a connection string.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	s, err := NewSQLStore(db, DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// isUniqueViolation reports whether err is a duplicate-key failure from
// either backing driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
