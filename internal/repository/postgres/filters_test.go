package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

func filterColumnsList() []string {
	return []string{
		"id", "user_id", "name", "keywords", "exclude_keywords", "price_min", "price_max",
		"regions", "tender_types", "law_type", "purchase_stage", "okpd2_codes",
		"min_deadline_days", "customer_keywords", "publication_days",
		"is_active", "ai_intent", "created_at", "updated_at",
	}
}

func TestFilterCreateValidates(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewFilterRepo(db).Create(context.Background(), &domain.Filter{UserID: 1, Name: "x"})
	assert.ErrorIs(t, err, domain.ErrEmptyKeywords)
}

func TestFilterCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO filters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	f := &domain.Filter{
		UserID:   1,
		Name:     "Компьютеры",
		Keywords: []string{"компьютер"},
	}
	require.NoError(t, NewFilterRepo(db).Create(context.Background(), f))
	assert.Equal(t, int64(7), f.ID)
	assert.True(t, f.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterGetScansJSONColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(filterColumnsList()).AddRow(
		int64(7), int64(1), "Компьютеры",
		[]byte(`["компьютер","ноутбук"]`), []byte(`["ремонт"]`), 100000.0, 5000000.0,
		[]byte(`["Москва"]`), []byte(`["goods"]`), "both", "submission", []byte(`[]`),
		3, []byte(`[]`), 0,
		true, "intent text", now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM filters WHERE id").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(rows)

	f, err := NewFilterRepo(db).Get(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"компьютер", "ноутбук"}, f.Keywords)
	assert.Equal(t, []string{"ремонт"}, f.ExcludeKeywords)
	assert.Equal(t, []domain.TenderType{domain.TenderGoods}, f.TenderTypes)
	assert.Nil(t, f.OKPD2Codes, "empty JSON arrays come back as nil slices")
	require.NotNil(t, f.PriceMin)
	assert.Equal(t, 100000.0, *f.PriceMin)
	assert.Equal(t, 3, f.MinDeadlineDays)
	assert.Equal(t, "intent text", f.AIIntent)
}

func TestFilterGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM filters WHERE id").
		WithArgs(int64(9), int64(1)).
		WillReturnRows(sqlmock.NewRows(filterColumnsList()))

	_, err = NewFilterRepo(db).Get(context.Background(), 1, 9)
	assert.ErrorIs(t, err, ErrFilterNotFound)
}

func TestFilterDeactivateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE filters SET is_active").
		WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewFilterRepo(db).Deactivate(context.Background(), 1, 9)
	assert.ErrorIs(t, err, ErrFilterNotFound)
}

func TestListActiveForMonitoring(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "keywords", "exclude_keywords", "price_min", "price_max",
		"regions", "tender_types", "law_type", "purchase_stage", "okpd2_codes",
		"min_deadline_days", "customer_keywords", "publication_days",
		"is_active", "ai_intent", "created_at", "updated_at",
		"u_id", "external_id", "username", "tier", "notifications_sent_today",
		"last_notification_reset", "monitoring_enabled",
	}).AddRow(
		int64(7), int64(1), "Компьютеры",
		[]byte(`["компьютер"]`), []byte(`[]`), nil, nil,
		[]byte(`[]`), []byte(`[]`), "both", "submission", []byte(`[]`),
		0, []byte(`[]`), 0,
		true, "", now, now,
		int64(1), int64(111222333), "ivan", "premium", 2,
		now, true,
	)
	mock.ExpectQuery("SELECT (.+) FROM filters f").
		WillReturnRows(rows)

	out, err := NewFilterRepo(db).ListActiveForMonitoring(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].Filter.ID)
	assert.Equal(t, domain.TierPremium, out[0].User.Tier)
	assert.Nil(t, out[0].Filter.PriceMin)
}
