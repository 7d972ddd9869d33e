package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

const extractMaxInputChars = 25000

// DocumentExtraction is the structured view of tender documentation. String
// fields hold "Не указано" / "Не удалось определить" rather than empty
// strings so templates can render them directly.
type DocumentExtraction struct {
	SubmissionDeadline string `json:"submission_deadline"`
	ExecutionDeadline  string `json:"execution_deadline"`
	DeliveryAddress    string `json:"delivery_address"`

	ItemsCount       string `json:"items_count"`
	ItemsDescription string `json:"items_description"`

	LicensesRequired   string `json:"licenses_required"`
	ExperienceRequired string `json:"experience_required"`

	AdvancePercent       string `json:"advance_percent"`
	PaymentDeadline      string `json:"payment_deadline"`
	ApplicationSecurity  string `json:"application_security"`
	ContractSecurity     string `json:"contract_security"`
	BankGuaranteeAllowed string `json:"bank_guarantee_allowed"`

	Summary  string   `json:"summary"`
	RedFlags []string `json:"red_flags"`
}

const extractPromptDates = `Ты эксперт по анализу тендерной документации госзакупок России.

Извлеки ТОЛЬКО сроки и адрес поставки. Ответ СТРОГО в JSON:

{
    "submission_deadline": "дата и время окончания подачи заявок, формат ДД.ММ.ГГГГ ЧЧ:ММ МСК. Если нет — 'Не указано'",
    "execution_deadline": "срок исполнения/поставки ДОСЛОВНО как в документе. Если нет — 'Не указано'",
    "delivery_address": "адрес ПОСТАВКИ (НЕ юридический адрес заказчика!). Если нет — 'Не указано'"
}

ПРАВИЛА:
1. submission_deadline — ищи "окончание подачи заявок", "заявки принимаются до"
2. execution_deadline — ищи "срок исполнения", "срок поставки", пиши ДОСЛОВНО
3. delivery_address — ищи "место поставки", "адрес доставки", "место выполнения работ"
4. Если информации нет — пиши "Не указано"

`

const extractPromptFinance = `Ты эксперт по анализу тендерной документации госзакупок России.

Извлеки ТОЛЬКО финансовые условия. Ответ СТРОГО в JSON:

{
    "advance_percent": "размер аванса, например '30%'. Если не предусмотрен — 'Не предусмотрен'. Если не указано — 'Не указано'",
    "payment_deadline": "срок оплаты, например '15 рабочих дней после подписания акта'. Если нет — 'Не указано'",
    "application_security": "обеспечение заявки, например '1% от НМЦК' или 'Не требуется'. Если нет — 'Не указано'",
    "contract_security": "обеспечение исполнения контракта, например '5% от НМЦК'. Если нет — 'Не указано'",
    "bank_guarantee_allowed": "допускается ли банковская гарантия: 'Да', 'Нет' или 'Не указано'"
}

ПРАВИЛА:
1. Ищи "обеспечение заявки", "обеспечение исполнения контракта", "банковская гарантия"
2. Ищи "аванс", "авансовый платёж", "предоплата"
3. Указывай проценты с символом %, суммы с "руб."

`

const extractPromptItems = `Ты эксперт по анализу тендерной документации госзакупок России.

Извлеки позиции закупки и требования к участнику. Ответ СТРОГО в JSON:

{
    "items_count": "число позиций/наименований в спецификации, например '3'. ОБЯЗАТЕЛЬНО!",
    "items_description": "нумерованный список позиций В ОДНУ СТРОКУ через '; '. Максимум 10 позиций. ОБЯЗАТЕЛЬНО!",
    "licenses_required": "конкретные лицензии: 'Лицензия ФСБ', 'Лицензия ФСТЭК', 'СРО'. Если не требуются — 'Не требуются'",
    "experience_required": "требования к опыту, например 'Не менее 3 лет'. Если нет — 'Не указано'",
    "summary": "1-2 предложения: что закупают, количество, ключевые условия"
}

ПРАВИЛА:
1. items_count — ВСЕГДА заполни, посчитай позиции в спецификации
2. Если указан бренд/марка/модель — включи в описание позиции
3. licenses_required — ТОЛЬКО конкретные лицензии (ФСБ, ФСТЭК, МЧС, СРО), НЕ общие фразы

`

// DocumentExtractor pulls structured fields out of tender documentation text.
// Three focused passes (dates, finance, items) are cheaper and more reliable
// than one prompt asking for everything at once.
type DocumentExtractor struct {
	llm *Client
	now func() time.Time
}

// NewDocumentExtractor builds a DocumentExtractor.
func NewDocumentExtractor(llm *Client) *DocumentExtractor {
	return &DocumentExtractor{llm: llm, now: time.Now}
}

// Extract returns the structured extraction and whether AI produced it. Tiers
// without AI features and every failure path get the regex-based fallback.
func (e *DocumentExtractor) Extract(ctx context.Context, text string, t *domain.Tender, tier domain.Tier) (*DocumentExtraction, bool) {
	if !TierHasAIFeatures(tier) || !e.llm.Enabled() {
		return e.fallbackExtract(text), false
	}

	input := truncate(text, extractMaxInputChars)
	tctx := tenderContext(t)

	merged := make(map[string]string)
	passes := []struct {
		prompt    string
		maxTokens int
	}{
		{extractPromptDates, 500},
		{extractPromptFinance, 500},
		{extractPromptItems, 2000},
	}
	failed := 0
	for _, pass := range passes {
		fields, err := e.extractPass(ctx, pass.prompt, tctx, input, pass.maxTokens)
		if err != nil {
			log.Printf("[AIExtract] pass failed: %v", err)
			failed++
			continue
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	if failed == len(passes) {
		return e.fallbackExtract(text), false
	}

	result := extractionFromFields(merged)
	result.RedFlags = e.redFlags(result)
	return result, true
}

func (e *DocumentExtractor) extractPass(ctx context.Context, prompt, tenderCtx, text string, maxTokens int) (map[string]string, error) {
	content := prompt + tenderCtx + "ДОКУМЕНТАЦИЯ ТЕНДЕРА:\n" + text
	out, err := e.llm.Complete(ctx, []ChatMessage{{Role: "user", Content: content}}, 0.1, maxTokens)
	if err != nil {
		return nil, err
	}
	blob, ok := extractJSONBlob(out)
	if !ok {
		return nil, fmt.Errorf("no JSON object in extraction output")
	}
	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parse extraction output: %w", err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = strings.TrimSpace(val)
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return fields, nil
}

func tenderContext(t *domain.Tender) string {
	if t == nil {
		return ""
	}
	var parts []string
	if t.Number != "" {
		parts = append(parts, "Номер закупки: "+t.Number)
	}
	if t.Price > 0 {
		parts = append(parts, "НМЦ: "+t.PriceFormatted())
	}
	if t.CustomerName != "" {
		parts = append(parts, "Заказчик: "+t.CustomerName)
	}
	if len(parts) == 0 {
		return ""
	}
	return "ИНФОРМАЦИЯ О ТЕНДЕРЕ:\n" + strings.Join(parts, "\n") + "\n\n"
}

func extractionFromFields(fields map[string]string) *DocumentExtraction {
	get := func(key string) string {
		if v := fields[key]; v != "" {
			return v
		}
		return "Не удалось определить"
	}
	return &DocumentExtraction{
		SubmissionDeadline:   get("submission_deadline"),
		ExecutionDeadline:    get("execution_deadline"),
		DeliveryAddress:      get("delivery_address"),
		ItemsCount:           get("items_count"),
		ItemsDescription:     get("items_description"),
		LicensesRequired:     get("licenses_required"),
		ExperienceRequired:   get("experience_required"),
		AdvancePercent:       get("advance_percent"),
		PaymentDeadline:      get("payment_deadline"),
		ApplicationSecurity:  get("application_security"),
		ContractSecurity:     get("contract_security"),
		BankGuaranteeAllowed: get("bank_guarantee_allowed"),
		Summary:              get("summary"),
	}
}

var (
	securityPercentRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	deadlineDateRegex    = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)

	appSecurityRegex      = regexp.MustCompile(`обеспечение заявки[:\s]+(\d+(?:[.,]\d+)?)\s*%`)
	contractSecurityRegex = regexp.MustCompile(`обеспечение (?:исполнения )?контракта[:\s]+(\d+(?:[.,]\d+)?)\s*%`)
	executionDaysRegex    = regexp.MustCompile(`(?:срок (?:исполнения|выполнения|поставки)|в течение)[:\s]+(\d+)\s*(календарн\w+|рабочих)?\s*дн`)
	experienceRegex       = regexp.MustCompile(`опыт\w*\s+(?:работы\s+)?(?:не\s+)?менее\s+(\d+)\s*(?:лет|года)`)
)

// fallbackExtract produces a partial extraction from regexes alone.
func (e *DocumentExtractor) fallbackExtract(text string) *DocumentExtraction {
	lower := strings.ToLower(text)

	result := extractionFromFields(nil)
	result.LicensesRequired = "Не требуются"
	result.ExperienceRequired = "Не указано"
	result.AdvancePercent = "Не указано"
	result.PaymentDeadline = "Не указано"
	result.ApplicationSecurity = "Не указано"
	result.ContractSecurity = "Не указано"
	result.BankGuaranteeAllowed = "Не указано"
	result.Summary = "Требуется детальный анализ документации."

	if strings.Contains(lower, "банковская гарантия") {
		result.BankGuaranteeAllowed = "Да"
	}
	if m := appSecurityRegex.FindStringSubmatch(lower); m != nil {
		result.ApplicationSecurity = strings.ReplaceAll(m[1], ",", ".") + "% от НМЦК"
	}
	if m := contractSecurityRegex.FindStringSubmatch(lower); m != nil {
		result.ContractSecurity = strings.ReplaceAll(m[1], ",", ".") + "% от НМЦК"
	}
	if m := executionDaysRegex.FindStringSubmatch(lower); m != nil {
		dayType := m[2]
		if dayType == "" {
			dayType = "календарных"
		}
		result.ExecutionDeadline = m[1] + " " + dayType + " дней"
	}

	var licenses []string
	for _, lic := range []struct{ pattern, name string }{
		{"лицензия фсб", "Лицензия ФСБ"},
		{"лицензия фстэк", "Лицензия ФСТЭК"},
		{"лицензия мчс", "Лицензия МЧС"},
		{"медицинская лицензия", "Медицинская лицензия"},
		{"строительная лицензия", "Строительная лицензия"},
	} {
		if strings.Contains(lower, lic.pattern) {
			licenses = append(licenses, lic.name)
		}
	}
	if strings.Contains(lower, "сро") || strings.Contains(lower, "саморегулируемой") {
		licenses = append(licenses, "СРО")
	}
	if len(licenses) > 0 {
		result.LicensesRequired = strings.Join(licenses, ", ")
	}

	if m := experienceRegex.FindStringSubmatch(lower); m != nil {
		result.ExperienceRequired = "Не менее " + m[1] + " лет"
	}

	result.RedFlags = e.redFlags(result)
	return result
}

// redFlags derives participation warnings from the extracted fields.
func (e *DocumentExtractor) redFlags(d *DocumentExtraction) []string {
	var flags []string

	licenses := strings.ToLower(d.LicensesRequired)
	if strings.Contains(licenses, "фсб") {
		flags = append(flags, "Требуется лицензия ФСБ")
	}
	if strings.Contains(licenses, "фстэк") {
		flags = append(flags, "Требуется лицензия ФСТЭК")
	}
	if strings.Contains(licenses, "сро") {
		flags = append(flags, "Требуется членство в СРО")
	}

	for _, sec := range []struct{ value, label string }{
		{d.ApplicationSecurity, "обеспечение заявки"},
		{d.ContractSecurity, "обеспечение контракта"},
	} {
		if m := securityPercentRegex.FindStringSubmatch(sec.value); m != nil {
			pct, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			if err == nil && pct > 5 {
				flags = append(flags, "Высокое "+sec.label+": "+sec.value)
			}
		}
	}

	if m := deadlineDateRegex.FindStringSubmatch(d.SubmissionDeadline); m != nil {
		if deadline, err := time.Parse("02.01.2006", m[0]); err == nil {
			daysLeft := int(deadline.Sub(e.now()).Hours() / 24)
			switch {
			case daysLeft < 0:
				flags = append(flags, "Срок подачи заявок истёк!")
			case daysLeft < 3:
				flags = append(flags, "Срок подачи < 3 дней!")
			case daysLeft < 7:
				flags = append(flags, "Срок подачи < 7 дней")
			}
		}
	}

	return flags
}
