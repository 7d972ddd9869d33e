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

func sampleNotification() *domain.Notification {
	return &domain.Notification{
		UserID:          1,
		FilterID:        2,
		FilterName:      "Компьютеры",
		TenderNumber:    "0173200001426000001",
		TenderName:      "Поставка компьютеров",
		TenderPrice:     2500000,
		TenderURL:       "https://zakupki.gov.ru/epz/order/notice/ea44/view/common-info.html?regNumber=0173200001426000001",
		Score:           72,
		MatchedKeywords: []string{"компьютер"},
		Source:          domain.SourceAutoMonitoring,
	}
}

func TestRecordDeliveredInsertsAndIncrements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := NewNotificationRepo(db).RecordDelivered(context.Background(), sampleNotification())
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeliveredDuplicateIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The conflict target swallows the insert: no row, and critically no
	// counter increment.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := NewNotificationRepo(db).RecordDelivered(context.Background(), sampleNotification())
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsAlreadyNotified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), "0173200001426000001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	notified, err := NewNotificationRepo(db).IsAlreadyNotified(context.Background(), 1, "0173200001426000001")
	require.NoError(t, err)
	assert.True(t, notified)
}

func TestClearHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM notifications WHERE user_id").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 17))

	removed, err := NewNotificationRepo(db).ClearHistory(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(17), removed)
}

func TestClearHistoryOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM notifications").
		WithArgs(int64(1), 30).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := NewNotificationRepo(db).ClearHistory(context.Background(), 1, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestListUserTenders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sentAt := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "filter_id", "filter_name", "tender_number", "tender_name",
		"tender_price", "tender_url", "tender_region", "tender_customer", "score",
		"matched_keywords", "published_date", "submission_deadline", "source",
		"sent_at", "external_message_id",
	}).AddRow(
		int64(5), int64(1), int64(2), "Компьютеры", "001", "Поставка компьютеров",
		2500000.0, "https://example.test", "Москва", "ГБУЗ", 72,
		[]byte(`["компьютер"]`), nil, nil, "automonitoring",
		sentAt, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM notifications").
		WithArgs(int64(1), 10).
		WillReturnRows(rows)

	out, err := NewNotificationRepo(db).ListUserTenders(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "001", out[0].TenderNumber)
	assert.Equal(t, []string{"компьютер"}, out[0].MatchedKeywords)
	assert.Nil(t, out[0].PublishedDate)
	assert.Nil(t, out[0].ExternalMessageID)
}
