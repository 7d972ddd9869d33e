package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// TenderCacheRepo stores previously seen tenders with a content hash so the
// pipeline can tell "seen and unchanged" from "seen but updated".
type TenderCacheRepo struct{ db *sql.DB }

// NewTenderCacheRepo creates a Postgres-backed tender cache.
func NewTenderCacheRepo(db *sql.DB) *TenderCacheRepo { return &TenderCacheRepo{db: db} }

// Upsert records the tender sighting. Returns true when the tender is new or
// its scored content changed since the last sighting.
func (r *TenderCacheRepo) Upsert(ctx context.Context, t *domain.Tender) (bool, error) {
	hash := t.ContentHash()

	var prevHash string
	err := r.db.QueryRowContext(ctx, `
		SELECT content_hash FROM tender_cache WHERE tender_number = $1
	`, t.Number).Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("read tender cache: %w", err)
	}
	known := err == nil

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tender_cache
			(tender_number, name, price, customer_name, customer_region, url,
			 published_date, submission_deadline, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tender_number) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			customer_name = EXCLUDED.customer_name,
			customer_region = EXCLUDED.customer_region,
			url = EXCLUDED.url,
			published_date = EXCLUDED.published_date,
			submission_deadline = EXCLUDED.submission_deadline,
			content_hash = EXCLUDED.content_hash,
			last_seen_at = NOW()
	`, t.Number, t.Name, t.Price, t.CustomerName, t.CustomerRegion, t.URL,
		t.PublishedDate, t.SubmissionDeadline, hash)
	if err != nil {
		return false, fmt.Errorf("upsert tender cache: %w", err)
	}

	return !known || prevHash != hash, nil
}

// IncrementMatched bumps the per-tender match counter.
func (r *TenderCacheRepo) IncrementMatched(ctx context.Context, tenderNumber string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tender_cache SET times_matched = times_matched + 1 WHERE tender_number = $1
	`, tenderNumber)
	if err != nil {
		return fmt.Errorf("increment matched: %w", err)
	}
	return nil
}

// Get returns a cached tender snapshot, or nil when unknown or stale. Only
// rows seen within the last 24 hours qualify: beyond that window the portal
// content can no longer be assumed unchanged and the caller must re-enrich.
func (r *TenderCacheRepo) Get(ctx context.Context, tenderNumber string) (*domain.Tender, error) {
	t := &domain.Tender{}
	var published, deadline sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT tender_number, name, price, customer_name, customer_region, url,
		       published_date, submission_deadline
		FROM tender_cache
		WHERE tender_number = $1 AND last_seen_at > NOW() - INTERVAL '24 hours'
	`, tenderNumber).Scan(
		&t.Number, &t.Name, &t.Price, &t.CustomerName, &t.CustomerRegion, &t.URL,
		&published, &deadline,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached tender: %w", err)
	}
	if published.Valid {
		t.PublishedDate = &published.Time
	}
	if deadline.Valid {
		t.SubmissionDeadline = &deadline.Time
	}
	return t, nil
}

// Prune drops cache rows not seen for the given number of days.
func (r *TenderCacheRepo) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tender_cache WHERE last_seen_at < NOW() - ($1 * INTERVAL '1 day')
	`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("prune tender cache: %w", err)
	}
	return res.RowsAffected()
}
