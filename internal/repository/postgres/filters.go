package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// ErrFilterNotFound is returned when no filter row matches the lookup.
var ErrFilterNotFound = errors.New("filter not found")

// FilterRepo persists user search filters.
type FilterRepo struct{ db *sql.DB }

// NewFilterRepo creates a Postgres-backed filter repository.
func NewFilterRepo(db *sql.DB) *FilterRepo { return &FilterRepo{db: db} }

const filterColumns = `id, user_id, name, keywords, exclude_keywords, price_min, price_max,
	       regions, tender_types, law_type, purchase_stage, okpd2_codes,
	       min_deadline_days, customer_keywords, publication_days,
	       is_active, ai_intent, created_at, updated_at`

func scanFilter(row interface{ Scan(...any) error }) (*domain.Filter, error) {
	f := &domain.Filter{}
	var (
		keywords, excludeKeywords, regions, tenderTypes []byte
		okpd2, customerKeywords                         []byte
		priceMin, priceMax                              sql.NullFloat64
	)
	err := row.Scan(
		&f.ID, &f.UserID, &f.Name, &keywords, &excludeKeywords, &priceMin, &priceMax,
		&regions, &tenderTypes, &f.LawType, &f.Stage, &okpd2,
		&f.MinDeadlineDays, &customerKeywords, &f.PublicationDays,
		&f.IsActive, &f.AIIntent, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if priceMin.Valid {
		f.PriceMin = &priceMin.Float64
	}
	if priceMax.Valid {
		f.PriceMax = &priceMax.Float64
	}
	for _, pair := range []struct {
		data []byte
		dst  *[]string
	}{
		{keywords, &f.Keywords},
		{excludeKeywords, &f.ExcludeKeywords},
		{regions, &f.Regions},
		{okpd2, &f.OKPD2Codes},
		{customerKeywords, &f.CustomerKeywords},
	} {
		if err := scanJSONList(pair.data, pair.dst); err != nil {
			return nil, err
		}
	}
	if err := scanJSONList(tenderTypes, &f.TenderTypes); err != nil {
		return nil, err
	}
	return f, nil
}

func filterArgs(f *domain.Filter) ([]any, error) {
	keywords, err := jsonList(f.Keywords)
	if err != nil {
		return nil, err
	}
	exclude, err := jsonList(f.ExcludeKeywords)
	if err != nil {
		return nil, err
	}
	regions, err := jsonList(f.Regions)
	if err != nil {
		return nil, err
	}
	types, err := jsonList(f.TenderTypes)
	if err != nil {
		return nil, err
	}
	okpd2, err := jsonList(f.OKPD2Codes)
	if err != nil {
		return nil, err
	}
	customer, err := jsonList(f.CustomerKeywords)
	if err != nil {
		return nil, err
	}
	return []any{
		f.Name, keywords, exclude, f.PriceMin, f.PriceMax,
		regions, types, lawOrDefault(f.LawType), string(f.EffectiveStage()), okpd2,
		f.MinDeadlineDays, customer, f.PublicationDays, f.AIIntent,
	}, nil
}

func lawOrDefault(l domain.LawType) string {
	if l == "" {
		return string(domain.LawBoth)
	}
	return string(l)
}

// Create inserts a validated filter and fills in its id and timestamps.
func (r *FilterRepo) Create(ctx context.Context, f *domain.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	args, err := filterArgs(f)
	if err != nil {
		return err
	}
	args = append([]any{f.UserID}, args...)

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO filters
			(user_id, name, keywords, exclude_keywords, price_min, price_max,
			 regions, tender_types, law_type, purchase_stage, okpd2_codes,
			 min_deadline_days, customer_keywords, publication_days, ai_intent,
			 is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, TRUE)
		RETURNING id, created_at, updated_at
	`, args...).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}
	f.IsActive = true
	return nil
}

// Update rewrites every editable column of the filter.
func (r *FilterRepo) Update(ctx context.Context, f *domain.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	args, err := filterArgs(f)
	if err != nil {
		return err
	}
	args = append([]any{f.ID, f.UserID}, args...)

	res, err := r.db.ExecContext(ctx, `
		UPDATE filters SET
			name = $3, keywords = $4, exclude_keywords = $5, price_min = $6, price_max = $7,
			regions = $8, tender_types = $9, law_type = $10, purchase_stage = $11,
			okpd2_codes = $12, min_deadline_days = $13, customer_keywords = $14,
			publication_days = $15, ai_intent = $16, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, args...)
	if err != nil {
		return fmt.Errorf("update filter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update filter rows: %w", err)
	}
	if n == 0 {
		return ErrFilterNotFound
	}
	return nil
}

// Get returns one filter owned by the user.
func (r *FilterRepo) Get(ctx context.Context, userID, filterID int64) (*domain.Filter, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+filterColumns+` FROM filters WHERE id = $1 AND user_id = $2`, filterID, userID)
	f, err := scanFilter(row)
	if err == sql.ErrNoRows {
		return nil, ErrFilterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get filter: %w", err)
	}
	return f, nil
}

// ListByUser returns the user's filters, active first, newest first.
func (r *FilterRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Filter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+filterColumns+` FROM filters
		WHERE user_id = $1
		ORDER BY is_active DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	defer rows.Close()

	var out []domain.Filter
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// CountActive returns the number of active filters the user owns, for tier
// limit enforcement.
func (r *FilterRepo) CountActive(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM filters WHERE user_id = $1 AND is_active`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active filters: %w", err)
	}
	return n, nil
}

// Deactivate soft-deletes a filter. History referencing it stays intact.
func (r *FilterRepo) Deactivate(ctx context.Context, userID, filterID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE filters SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, filterID, userID)
	if err != nil {
		return fmt.Errorf("deactivate filter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate filter rows: %w", err)
	}
	if n == 0 {
		return ErrFilterNotFound
	}
	return nil
}

// SetAIIntent stores the generated filter intent.
func (r *FilterRepo) SetAIIntent(ctx context.Context, filterID int64, intent string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE filters SET ai_intent = $2, updated_at = NOW() WHERE id = $1
	`, filterID, intent)
	if err != nil {
		return fmt.Errorf("set ai intent: %w", err)
	}
	return nil
}

// ActiveFilter is a filter joined with the owner fields the monitoring loop
// needs to schedule and deliver.
type ActiveFilter struct {
	Filter domain.Filter
	User   domain.User
}

// ListActiveForMonitoring returns every active filter whose owner has
// monitoring enabled, with the owner's delivery-relevant fields attached.
func (r *FilterRepo) ListActiveForMonitoring(ctx context.Context) ([]ActiveFilter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.user_id, f.name, f.keywords, f.exclude_keywords, f.price_min, f.price_max,
		       f.regions, f.tender_types, f.law_type, f.purchase_stage, f.okpd2_codes,
		       f.min_deadline_days, f.customer_keywords, f.publication_days,
		       f.is_active, f.ai_intent, f.created_at, f.updated_at,
		       u.id, u.external_id, u.username, u.tier, u.notifications_sent_today,
		       u.last_notification_reset, u.monitoring_enabled
		FROM filters f
		JOIN users u ON u.id = f.user_id
		WHERE f.is_active AND u.monitoring_enabled
		ORDER BY f.user_id, f.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active filters: %w", err)
	}
	defer rows.Close()

	var out []ActiveFilter
	for rows.Next() {
		var af ActiveFilter
		var (
			keywords, excludeKeywords, regions, tenderTypes []byte
			okpd2, customerKeywords                         []byte
			priceMin, priceMax                              sql.NullFloat64
		)
		f := &af.Filter
		u := &af.User
		err := rows.Scan(
			&f.ID, &f.UserID, &f.Name, &keywords, &excludeKeywords, &priceMin, &priceMax,
			&regions, &tenderTypes, &f.LawType, &f.Stage, &okpd2,
			&f.MinDeadlineDays, &customerKeywords, &f.PublicationDays,
			&f.IsActive, &f.AIIntent, &f.CreatedAt, &f.UpdatedAt,
			&u.ID, &u.ExternalID, &u.Username, &u.Tier, &u.NotificationsSentToday,
			&u.LastNotificationReset, &u.MonitoringEnabled,
		)
		if err != nil {
			return nil, fmt.Errorf("scan active filter: %w", err)
		}
		if priceMin.Valid {
			f.PriceMin = &priceMin.Float64
		}
		if priceMax.Valid {
			f.PriceMax = &priceMax.Float64
		}
		for _, pair := range []struct {
			data []byte
			dst  *[]string
		}{
			{keywords, &f.Keywords},
			{excludeKeywords, &f.ExcludeKeywords},
			{regions, &f.Regions},
			{okpd2, &f.OKPD2Codes},
			{customerKeywords, &f.CustomerKeywords},
		} {
			if err := scanJSONList(pair.data, pair.dst); err != nil {
				return nil, err
			}
		}
		if err := scanJSONList(tenderTypes, &f.TenderTypes); err != nil {
			return nil, err
		}
		out = append(out, af)
	}
	return out, rows.Err()
}
