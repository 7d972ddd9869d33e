package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

const sampleDocText = `Извещение о проведении электронного аукциона.
Обеспечение заявки: 1% от НМЦК. Обеспечение исполнения контракта: 10%
от начальной цены. Допускается банковская гарантия.
Срок поставки: 30 календарных дней с момента заключения контракта.
Участник должен иметь опыт работы не менее 3 лет.
Требуется лицензия ФСТЭК на техническую защиту информации.`

func TestFallbackExtraction(t *testing.T) {
	e := NewDocumentExtractor(&Client{})
	res, isAI := e.Extract(context.Background(), sampleDocText, sampleTender(), domain.TierPremium)

	require.False(t, isAI)
	assert.Equal(t, "1% от НМЦК", res.ApplicationSecurity)
	assert.Equal(t, "10% от НМЦК", res.ContractSecurity)
	assert.Equal(t, "Да", res.BankGuaranteeAllowed)
	assert.Equal(t, "30 календарных дней", res.ExecutionDeadline)
	assert.Equal(t, "Не менее 3 лет", res.ExperienceRequired)
	assert.Contains(t, res.LicensesRequired, "Лицензия ФСТЭК")
}

func TestExtractionGatedByTier(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"items_count": "2"}`)
	e := NewDocumentExtractor(testClient(srv.URL))

	_, isAI := e.Extract(context.Background(), sampleDocText, sampleTender(), domain.TierTrial)
	assert.False(t, isAI)
}

func TestAIExtractionMergesPasses(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"submission_deadline": "10.09.2026 10:00 МСК", "items_count": "2", "contract_security": "10% от НМЦК", "summary": "Закупка компьютеров"}`)
	e := NewDocumentExtractor(testClient(srv.URL))

	res, isAI := e.Extract(context.Background(), sampleDocText, sampleTender(), domain.TierPremium)
	require.True(t, isAI)
	assert.Equal(t, "10.09.2026 10:00 МСК", res.SubmissionDeadline)
	assert.Equal(t, "2", res.ItemsCount)
	assert.Equal(t, "Закупка компьютеров", res.Summary)
	// Fields no pass produced are filled with a sentinel, not left empty.
	assert.Equal(t, "Не удалось определить", res.DeliveryAddress)
}

func TestRedFlags(t *testing.T) {
	e := NewDocumentExtractor(&Client{})
	e.now = func() time.Time { return time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC) }

	flags := e.redFlags(&DocumentExtraction{
		LicensesRequired:    "Лицензия ФСБ, СРО",
		ApplicationSecurity: "1% от НМЦК",
		ContractSecurity:    "10% от НМЦК",
		SubmissionDeadline:  "10.09.2026 10:00",
	})

	assert.Contains(t, flags, "Требуется лицензия ФСБ")
	assert.Contains(t, flags, "Требуется членство в СРО")
	assert.Contains(t, flags, "Высокое обеспечение контракта: 10% от НМЦК")
	assert.Contains(t, flags, "Срок подачи < 3 дней!")
	assert.NotContains(t, flags, "Высокое обеспечение заявки: 1% от НМЦК")
}

func TestRedFlagsExpiredDeadline(t *testing.T) {
	e := NewDocumentExtractor(&Client{})
	e.now = func() time.Time { return time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC) }

	flags := e.redFlags(&DocumentExtraction{SubmissionDeadline: "10.09.2026"})
	assert.Contains(t, flags, "Срок подачи заявок истёк!")
}
