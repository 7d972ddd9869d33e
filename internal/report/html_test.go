package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/tender-monitor/internal/ai"
	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/search"
)

func reportFilter() *domain.Filter {
	return &domain.Filter{
		Name:     "Компьютеры",
		Keywords: []string{"компьютер", "ноутбук"},
	}
}

func reportMatch(number string, score int) search.Match {
	deadline := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	published := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	return search.Match{
		Tender: domain.Tender{
			Number:             number,
			Name:               "Поставка компьютеров " + number,
			URL:                "https://zakupki.gov.ru/view?regNumber=" + number,
			Price:              2500000,
			CustomerName:       "ГБУЗ Городская больница",
			CustomerRegion:     "Москва",
			SubmissionDeadline: &deadline,
			PublishedDate:      &published,
		},
		Result: domain.MatchResult{
			Score:           score,
			MatchedKeywords: []string{"компьютер"},
			Reasons:         []string{"прямое совпадение: компьютер"},
		},
	}
}

func TestGenerateBasicReport(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	out, err := g.Generate(reportFilter(), []search.Match{
		reportMatch("001", 90),
		reportMatch("002", 65),
		reportMatch("003", 40),
	})
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "Компьютеры")
	assert.Contains(t, html, "компьютер, ноутбук")
	assert.Contains(t, html, "2 500 000 ₽")
	assert.Contains(t, html, "10.09.2026 10:00")
	assert.Contains(t, html, "№ 001")
	assert.Contains(t, html, `<b>3</b>всего`)
	assert.Contains(t, html, `<b>1</b>сильных`)
	assert.Contains(t, html, `<b>1</b>средних`)
	assert.Contains(t, html, `class="badge high"`)
	assert.Contains(t, html, `class="badge medium"`)
	assert.Contains(t, html, `class="badge low"`)
}

func TestGenerateSelfContained(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	out, err := g.Generate(reportFilter(), []search.Match{reportMatch("001", 90)})
	require.NoError(t, err)
	html := string(out)

	assert.NotContains(t, html, "http-equiv=\"refresh\"")
	assert.NotContains(t, html, "<link ", "no external stylesheets")
	assert.NotContains(t, html, "src=\"http", "no external scripts")
	assert.Contains(t, html, "<style>")
	assert.Contains(t, html, "<script>")
}

func TestGenerateEscapesUserData(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	m := reportMatch("001", 90)
	m.Tender.Name = `Поставка <script>alert("x")</script>`
	out, err := g.Generate(reportFilter(), []search.Match{m})
	require.NoError(t, err)

	assert.NotContains(t, string(out), "<script>alert")
	assert.Contains(t, string(out), "&lt;script&gt;")
}

func TestGenerateAIAndRedFlags(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	m := reportMatch("001", 70)
	m.AI = &ai.CheckResult{IsRelevant: true, Confidence: 91, Reason: "Совпадает с запросом", Source: ai.SourceAI}
	m.Result.RedFlags = []string{"Требуется лицензия ФСТЭК", "Срок подачи < 7 дней"}

	out, err := g.Generate(reportFilter(), []search.Match{m})
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "AI: 91%")
	assert.Contains(t, html, "Требуется лицензия ФСТЭК")
	assert.Contains(t, html, "🚩")
}

func TestGenerateSizeBudget(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	matches := make([]search.Match, 0, 100)
	for i := 0; i < 100; i++ {
		matches = append(matches, reportMatch(fmt.Sprintf("%03d", i), 60+i%40))
	}
	out, err := g.Generate(reportFilter(), matches)
	require.NoError(t, err)
	assert.Less(t, len(out), 2*1024*1024, "100-tender report stays under 2 MB")
	assert.Equal(t, 100, strings.Count(string(out), `class="card"`))
}

func TestGenerateEmpty(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	out, err := g.Generate(reportFilter(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), `<b>0</b>всего`)
}

func TestFilename(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)
	g.now = func() time.Time { return time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC) }

	f := &domain.Filter{Name: "Серверы / СХД"}
	name := g.Filename(f)
	assert.Equal(t, "tenders_Серверы___СХД_2026-08-25_14-30.html", name)
	assert.NotContains(t, name, "/")

	assert.Equal(t, "tenders_search_2026-08-25_14-30.html", g.Filename(&domain.Filter{}))
}
