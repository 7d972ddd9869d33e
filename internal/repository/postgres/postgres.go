// Package postgres implements the persistence layer over PostgreSQL: users,
// filters, notifications, the tender cache and the user action audit log.
// All mutating operations run in transactions; idempotency constraints live
// in the schema, not in application logic.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and configures the shared pool.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// jsonList marshals a string-like slice into a JSONB parameter. nil becomes
// an empty array so columns never hold SQL NULL.
func jsonList[T ~string](values []T) ([]byte, error) {
	if values == nil {
		values = []T{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal list: %w", err)
	}
	return data, nil
}

// scanJSONList unmarshals a JSONB column into a string-like slice.
func scanJSONList[T ~string](data []byte, dst *[]T) error {
	if len(data) == 0 {
		*dst = nil
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal list: %w", err)
	}
	if len(*dst) == 0 {
		*dst = nil
	}
	return nil
}
