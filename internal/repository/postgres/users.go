package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// ErrUserNotFound is returned when no user row matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// UserRepo persists user accounts.
type UserRepo struct{ db *sql.DB }

// NewUserRepo creates a Postgres-backed user repository.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, external_id, username, tier, notifications_sent_today,
	       last_notification_reset, monitoring_enabled, subscription_expiry,
	       created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	u := &domain.User{}
	var expiry sql.NullTime
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.Tier, &u.NotificationsSentToday,
		&u.LastNotificationReset, &u.MonitoringEnabled, &expiry,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		u.SubscriptionExpiry = &expiry.Time
	}
	return u, nil
}

// Upsert creates the user on first contact or refreshes the username on
// repeat contact, keyed by the external chat id.
func (r *UserRepo) Upsert(ctx context.Context, externalID int64, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, username)
		VALUES ($1, $2)
		ON CONFLICT (external_id)
		DO UPDATE SET username = EXCLUDED.username, updated_at = NOW()
		RETURNING `+userColumns, externalID, username)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// GetByExternalID looks a user up by chat id.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id: %w", err)
	}
	return u, nil
}

// Get looks a user up by primary key.
func (r *UserRepo) Get(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// HasQuota reports whether the user may receive one more notification today.
// The daily counter resets lazily: when 24h have passed since the last reset
// the counter is zeroed in place and the call reports true.
func (r *UserRepo) HasQuota(ctx context.Context, userID int64, dailyLimit int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin quota tx: %w", err)
	}
	defer tx.Rollback()

	var sentToday int
	var lastReset time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT notifications_sent_today, last_notification_reset
		FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&sentToday, &lastReset)
	if err == sql.ErrNoRows {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read quota: %w", err)
	}

	if time.Since(lastReset) >= 24*time.Hour {
		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET notifications_sent_today = 0, last_notification_reset = NOW(), updated_at = NOW()
			WHERE id = $1
		`, userID)
		if err != nil {
			return false, fmt.Errorf("reset quota: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit quota reset: %w", err)
		}
		return true, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit quota read: %w", err)
	}
	return sentToday < dailyLimit, nil
}

// SetMonitoringEnabled flips the user's monitoring flag. Used when the chat
// channel reports the user blocked the bot.
func (r *UserRepo) SetMonitoringEnabled(ctx context.Context, userID int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET monitoring_enabled = $2, updated_at = NOW() WHERE id = $1
	`, userID, enabled)
	if err != nil {
		return fmt.Errorf("set monitoring enabled: %w", err)
	}
	return nil
}

// SetTier upgrades or downgrades the subscription, keyed by chat id because
// that is what the payment webhook carries.
func (r *UserRepo) SetTier(ctx context.Context, externalID int64, tier domain.Tier, expiry *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET tier = $2, subscription_expiry = $3, updated_at = NOW()
		WHERE external_id = $1
	`, externalID, tier, expiry)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set tier rows: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DowngradeExpired drops users with a lapsed subscription back to trial.
// Returns the number of downgraded accounts.
func (r *UserRepo) DowngradeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET tier = 'trial', subscription_expiry = NULL, updated_at = NOW()
		WHERE subscription_expiry IS NOT NULL AND subscription_expiry < NOW() AND tier <> 'admin'
	`)
	if err != nil {
		return 0, fmt.Errorf("downgrade expired: %w", err)
	}
	return res.RowsAffected()
}
