package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/procurewatch/tender-monitor/internal/ai"
	"github.com/procurewatch/tender-monitor/internal/config"
	"github.com/procurewatch/tender-monitor/internal/domain"
)

const sheetsAPIBase = "https://sheets.googleapis.com/v4/spreadsheets"

// sheetColumn maps an internal field to its spreadsheet header.
type sheetColumn struct {
	key    string
	header string
}

var baseColumns = []sheetColumn{
	{"request_number", "№ заявки"},
	{"link", "Ссылка"},
	{"name", "Объект закупки"},
	{"customer", "Заказчик"},
	{"region", "Локация"},
	{"deadline", "Срок подачи"},
	{"price", "Начальная цена"},
	{"published", "Дата публикации"},
	{"filter", "Фильтр"},
	{"score", "Score"},
	{"red_flags", "Красные флаги"},
}

var aiColumns = []sheetColumn{
	{"delivery_date", "Дата поставки"},
	{"items_count", "Кол-во наименований"},
	{"security", "Обеспечение"},
	{"payment", "Способ оплаты"},
	{"ai_comment", "Комментарий (AI)"},
	{"licenses", "Лицензии"},
	{"experience", "Требования к опыту"},
}

var statusColumn = sheetColumn{"status", "Статус"}

// SheetsExporter appends matched tenders to a Google Sheet over the REST API.
// Disabled (every call a no-op) when the spreadsheet or token is not
// configured.
type SheetsExporter struct {
	spreadsheetID string
	apiToken      string
	sheetName     string
	baseURL       string
	httpClient    *http.Client
	now           func() time.Time
}

func NewSheetsExporter(cfg config.SheetsConfig) *SheetsExporter {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SheetsExporter{
		spreadsheetID: cfg.SpreadsheetID,
		apiToken:      cfg.APIToken,
		sheetName:     cfg.SheetName,
		baseURL:       sheetsAPIBase,
		httpClient:    &http.Client{Timeout: timeout},
		now:           time.Now,
	}
}

func (e *SheetsExporter) Enabled() bool {
	return e != nil && e.spreadsheetID != "" && e.apiToken != ""
}

// ExportTender appends one row for a delivered notification. AI columns are
// filled only for users whose tier carries AI features.
func (e *SheetsExporter) ExportTender(ctx context.Context, n *domain.Notification, redFlags []string, extraction *ai.DocumentExtraction, includeAI bool) error {
	if !e.Enabled() {
		return nil
	}

	sheet := e.sheetName
	if sheet == "" {
		sheet = weeklySheetName(e.now())
	}

	row := e.buildRow(n, redFlags, extraction, includeAI)
	if err := e.appendRows(ctx, sheet, [][]any{row}); err != nil {
		return fmt.Errorf("export tender %s: %w", n.TenderNumber, err)
	}
	return nil
}

// EnsureHeaders writes the header row when the sheet is fresh. Idempotent
// enough for our use: the append range starts at A1, so an existing sheet
// just gets rows below its headers.
func (e *SheetsExporter) EnsureHeaders(ctx context.Context, includeAI bool) error {
	if !e.Enabled() {
		return nil
	}
	sheet := e.sheetName
	if sheet == "" {
		sheet = weeklySheetName(e.now())
	}

	columns := append([]sheetColumn{}, baseColumns...)
	if includeAI {
		columns = append(columns, aiColumns...)
	}
	columns = append(columns, statusColumn)

	headers := make([]any, len(columns))
	for i, c := range columns {
		headers[i] = c.header
	}
	return e.updateRange(ctx, fmt.Sprintf("%s!A1", sheet), [][]any{headers})
}

func (e *SheetsExporter) buildRow(n *domain.Notification, redFlags []string, extraction *ai.DocumentExtraction, includeAI bool) []any {
	deadline := ""
	if n.SubmissionDeadline != nil {
		deadline = n.SubmissionDeadline.Format("02.01.2006 15:04")
	}
	published := ""
	if n.PublishedDate != nil {
		published = n.PublishedDate.Format("02.01.2006")
	}
	price := ""
	if n.TenderPrice > 0 {
		price = formatPrice(n.TenderPrice)
	}

	row := []any{
		n.TenderNumber,
		n.TenderURL,
		n.TenderName,
		n.TenderCustomer,
		n.TenderRegion,
		deadline,
		price,
		published,
		n.FilterName,
		n.Score,
		joinFlags(redFlags),
	}
	if includeAI {
		if extraction != nil {
			row = append(row,
				extraction.ExecutionDeadline,
				extraction.ItemsCount,
				extraction.ContractSecurity,
				extraction.PaymentDeadline,
				extraction.Summary,
				extraction.LicensesRequired,
				extraction.ExperienceRequired,
			)
		} else {
			for range aiColumns {
				row = append(row, "")
			}
		}
	}
	row = append(row, "Новый")
	return row
}

func (e *SheetsExporter) appendRows(ctx context.Context, sheet string, rows [][]any) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		e.baseURL, e.spreadsheetID, url.PathEscape(sheet+"!A1"))
	return e.post(ctx, endpoint, map[string]any{"values": rows})
}

func (e *SheetsExporter) updateRange(ctx context.Context, valueRange string, rows [][]any) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=USER_ENTERED",
		e.baseURL, e.spreadsheetID, url.PathEscape(valueRange))
	return e.put(ctx, endpoint, map[string]any{"values": rows})
}

func (e *SheetsExporter) post(ctx context.Context, endpoint string, payload any) error {
	return e.send(ctx, http.MethodPost, endpoint, payload)
}

func (e *SheetsExporter) put(ctx context.Context, endpoint string, payload any) error {
	return e.send(ctx, http.MethodPut, endpoint, payload)
}

func (e *SheetsExporter) send(ctx context.Context, method, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sheets payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[Sheets] API error %d: %s", resp.StatusCode, string(detail))
		return fmt.Errorf("sheets api status %d", resp.StatusCode)
	}
	return nil
}

func joinFlags(flags []string) string {
	return strings.Join(flags, " | ")
}

// weeklySheetName names the tab after the current Monday-Sunday week,
// e.g. "24.08 - 30.08" (the sheet title itself uses the long dash).
func weeklySheetName(now time.Time) string {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := now.AddDate(0, 0, -(weekday - 1))
	sunday := monday.AddDate(0, 0, 6)
	return fmt.Sprintf("%s — %s", monday.Format("02.01"), sunday.Format("02.01"))
}
