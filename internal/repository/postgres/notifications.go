package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// NotificationRepo persists delivery records and owns the daily counter.
type NotificationRepo struct{ db *sql.DB }

// NewNotificationRepo creates a Postgres-backed notification repository.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// IsAlreadyNotified reports whether the user was already told about this
// tender, from any filter.
func (r *NotificationRepo) IsAlreadyNotified(ctx context.Context, userID int64, tenderNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id = $1 AND tender_number = $2)
	`, userID, tenderNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notified: %w", err)
	}
	return exists, nil
}

// RecordDelivered inserts the delivery record and increments the user's
// daily counter in one transaction. A concurrent duplicate for the same
// (user, tender) hits the uniqueness constraint and becomes a silent no-op:
// no second row, no counter bump. Returns whether a row was inserted.
func (r *NotificationRepo) RecordDelivered(ctx context.Context, n *domain.Notification) (bool, error) {
	matched, err := jsonList(n.MatchedKeywords)
	if err != nil {
		return false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin record tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO notifications
			(user_id, filter_id, filter_name, tender_number, tender_name, tender_price,
			 tender_url, tender_region, tender_customer, score, matched_keywords,
			 published_date, submission_deadline, source, external_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, tender_number) DO NOTHING
	`, n.UserID, n.FilterID, n.FilterName, n.TenderNumber, n.TenderName, n.TenderPrice,
		n.TenderURL, n.TenderRegion, n.TenderCustomer, n.Score, matched,
		n.PublishedDate, n.SubmissionDeadline, n.Source, n.ExternalMessageID)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification rows: %w", err)
	}
	if inserted == 0 {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET notifications_sent_today = notifications_sent_today + 1, updated_at = NOW()
		WHERE id = $1
	`, n.UserID)
	if err != nil {
		return false, fmt.Errorf("increment sent counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit record tx: %w", err)
	}
	return true, nil
}

// ClearHistory deletes the user's notification history. olderThanDays 0 wipes
// everything. Returns the number of rows removed.
func (r *NotificationRepo) ClearHistory(ctx context.Context, userID int64, olderThanDays int) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if olderThanDays > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM notifications
			WHERE user_id = $1 AND sent_at < NOW() - ($2 * INTERVAL '1 day')
		`, userID, olderThanDays)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// PruneOlderThan deletes delivered notifications older than the retention
// window across all users. Used by daily housekeeping.
func (r *NotificationRepo) PruneOlderThan(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE sent_at < NOW() - ($1 * INTERVAL '1 day')
	`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return res.RowsAffected()
}

// ListUserTenders returns the user's delivery history, most recent first.
func (r *NotificationRepo) ListUserTenders(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, filter_id, filter_name, tender_number, tender_name,
		       tender_price, tender_url, tender_region, tender_customer, score,
		       matched_keywords, published_date, submission_deadline, source,
		       sent_at, external_message_id
		FROM notifications
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var (
			matched   []byte
			published sql.NullTime
			deadline  sql.NullTime
			msgID     sql.NullInt64
		)
		err := rows.Scan(
			&n.ID, &n.UserID, &n.FilterID, &n.FilterName, &n.TenderNumber, &n.TenderName,
			&n.TenderPrice, &n.TenderURL, &n.TenderRegion, &n.TenderCustomer, &n.Score,
			&matched, &published, &deadline, &n.Source,
			&n.SentAt, &msgID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if err := scanJSONList(matched, &n.MatchedKeywords); err != nil {
			return nil, err
		}
		if published.Valid {
			n.PublishedDate = &published.Time
		}
		if deadline.Valid {
			n.SubmissionDeadline = &deadline.Time
		}
		if msgID.Valid {
			n.ExternalMessageID = &msgID.Int64
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
