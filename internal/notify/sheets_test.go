package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/tender-monitor/internal/ai"
)

type sheetsCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func fakeSheets(t *testing.T) (*httptest.Server, *[]sheetsCall) {
	t.Helper()
	calls := &[]sheetsCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sheets-token", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*calls = append(*calls, sheetsCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body,
		})
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func testExporter(baseURL string) *SheetsExporter {
	return &SheetsExporter{
		spreadsheetID: "sheet-id",
		apiToken:      "sheets-token",
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		now:           func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) },
	}
}

func exportRow(t *testing.T, call sheetsCall) []any {
	t.Helper()
	values := call.Body["values"].([]any)
	require.Len(t, values, 1)
	return values[0].([]any)
}

func TestExportTenderBasicRow(t *testing.T) {
	srv, calls := fakeSheets(t)
	e := testExporter(srv.URL)

	err := e.ExportTender(context.Background(), deliveredTender(), []string{"Срок подачи < 7 дней"}, nil, false)
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Contains(t, call.Path, "/sheet-id/values/")
	assert.Contains(t, call.Query, "valueInputOption=USER_ENTERED")

	row := exportRow(t, call)
	require.Len(t, row, len(baseColumns)+1, "base columns plus status")
	assert.Equal(t, "0173200001426000001", row[0])
	assert.Equal(t, "Поставка компьютеров для нужд учреждения", row[2])
	assert.Equal(t, "10.09.2026 10:00", row[5])
	assert.Equal(t, "2 500 000 ₽", row[6])
	assert.Equal(t, "Компьютеры", row[8])
	assert.Equal(t, float64(85), row[9])
	assert.Equal(t, "Срок подачи < 7 дней", row[10])
	assert.Equal(t, "Новый", row[len(row)-1])
}

func TestExportTenderPremiumRowIncludesAIColumns(t *testing.T) {
	srv, calls := fakeSheets(t)
	e := testExporter(srv.URL)

	extraction := &ai.DocumentExtraction{
		ExecutionDeadline:  "30 календарных дней",
		ItemsCount:         "12",
		ContractSecurity:   "5% от НМЦК",
		PaymentDeadline:    "15 рабочих дней",
		Summary:            "Поставка офисной техники",
		LicensesRequired:   "Не требуются",
		ExperienceRequired: "Не указано",
	}
	err := e.ExportTender(context.Background(), deliveredTender(), nil, extraction, true)
	require.NoError(t, err)

	row := exportRow(t, (*calls)[0])
	require.Len(t, row, len(baseColumns)+len(aiColumns)+1)
	assert.Equal(t, "30 календарных дней", row[len(baseColumns)])
	assert.Equal(t, "5% от НМЦК", row[len(baseColumns)+2])
	assert.Equal(t, "Поставка офисной техники", row[len(baseColumns)+4])
}

func TestExportTenderPremiumWithoutExtractionPadsAIColumns(t *testing.T) {
	srv, calls := fakeSheets(t)
	e := testExporter(srv.URL)

	require.NoError(t, e.ExportTender(context.Background(), deliveredTender(), nil, nil, true))

	row := exportRow(t, (*calls)[0])
	require.Len(t, row, len(baseColumns)+len(aiColumns)+1)
	for i := 0; i < len(aiColumns); i++ {
		assert.Equal(t, "", row[len(baseColumns)+i])
	}
}

func TestExportTenderDefaultsToWeeklySheet(t *testing.T) {
	srv, calls := fakeSheets(t)
	e := testExporter(srv.URL)

	require.NoError(t, e.ExportTender(context.Background(), deliveredTender(), nil, nil, false))
	assert.Contains(t, (*calls)[0].Path, "24.08 — 30.08")
}

func TestEnsureHeaders(t *testing.T) {
	srv, calls := fakeSheets(t)
	e := testExporter(srv.URL)
	e.sheetName = "Тендеры"

	require.NoError(t, e.EnsureHeaders(context.Background(), true))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPut, call.Method)

	headers := exportRow(t, call)
	require.Len(t, headers, len(baseColumns)+len(aiColumns)+1)
	assert.Equal(t, "№ заявки", headers[0])
	assert.Equal(t, "Красные флаги", headers[len(baseColumns)-1])
	assert.Equal(t, "Дата поставки", headers[len(baseColumns)])
	assert.Equal(t, "Статус", headers[len(headers)-1])
}

func TestSheetsDisabledIsNoOp(t *testing.T) {
	var e *SheetsExporter
	assert.False(t, e.Enabled())
	assert.NoError(t, e.ExportTender(context.Background(), deliveredTender(), nil, nil, false))

	empty := &SheetsExporter{}
	assert.False(t, empty.Enabled())
	assert.NoError(t, empty.ExportTender(context.Background(), deliveredTender(), nil, nil, false))
}

func TestSheetsAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"permission denied"}}`))
	}))
	t.Cleanup(srv.Close)

	err := testExporter(srv.URL).ExportTender(context.Background(), deliveredTender(), nil, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
