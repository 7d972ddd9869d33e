package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ActionRepo appends to the lightweight user action audit log.
type ActionRepo struct{ db *sql.DB }

// NewActionRepo creates a Postgres-backed action log.
func NewActionRepo(db *sql.DB) *ActionRepo { return &ActionRepo{db: db} }

// Record appends one action. details may be nil.
func (r *ActionRepo) Record(ctx context.Context, userID int64, action string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal action details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_actions (user_id, action, details) VALUES ($1, $2, $3)
	`, userID, action, payload)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}
