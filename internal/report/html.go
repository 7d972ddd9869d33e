// Package report renders instant-search results as a standalone HTML
// document: inline styles, no external fetches, client-side sorting and
// filtering so the file works offline in any browser.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/search"
)

const (
	scoreHigh   = 80
	scoreMedium = 60
)

// Generator renders search results to HTML.
type Generator struct {
	tpl *template.Template
	now func() time.Time
}

func NewGenerator() (*Generator, error) {
	tpl, err := template.New("report").Funcs(template.FuncMap{
		"lower": strings.ToLower,
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Generator{tpl: tpl, now: time.Now}, nil
}

type reportCard struct {
	Number     string
	Name       string
	URL        string
	Price      string
	PriceValue float64
	Customer   string
	Region     string
	Deadline   string
	DeadlineTS int64
	Published  string
	Score      int
	ScoreClass string
	Reasons    []string
	RedFlags   []string
	AILine     string
}

type reportData struct {
	FilterName  string
	Keywords    string
	GeneratedAt string
	Total       int
	HighCount   int
	MediumCount int
	LowCount    int
	Regions     []string
	Cards       []reportCard
}

// Generate renders the document. The result is self-contained; a 100-tender
// report stays well under 2 MB.
func (g *Generator) Generate(f *domain.Filter, matches []search.Match) ([]byte, error) {
	data := reportData{
		FilterName:  f.Name,
		Keywords:    strings.Join(f.Keywords, ", "),
		GeneratedAt: g.now().Format("02.01.2006 15:04"),
		Total:       len(matches),
	}

	regionSet := make(map[string]struct{})
	for _, m := range matches {
		card := cardFrom(m)
		switch {
		case card.Score >= scoreHigh:
			data.HighCount++
		case card.Score >= scoreMedium:
			data.MediumCount++
		default:
			data.LowCount++
		}
		if card.Region != "" {
			if _, seen := regionSet[card.Region]; !seen {
				regionSet[card.Region] = struct{}{}
				data.Regions = append(data.Regions, card.Region)
			}
		}
		data.Cards = append(data.Cards, card)
	}

	var buf bytes.Buffer
	if err := g.tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename names the report file after the filter and the generation time.
func (g *Generator) Filename(f *domain.Filter) string {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "search"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("tenders_%s_%s.html", name, g.now().Format("2006-01-02_15-04"))
}

func cardFrom(m search.Match) reportCard {
	t := m.Tender
	card := reportCard{
		Number:     t.Number,
		Name:       t.Name,
		URL:        t.URL,
		PriceValue: t.Price,
		Customer:   t.CustomerName,
		Region:     t.CustomerRegion,
		Score:      m.Result.Score,
		Reasons:    m.Result.Reasons,
		RedFlags:   m.Result.RedFlags,
	}
	if t.Price > 0 {
		card.Price = t.PriceFormatted()
	} else {
		card.Price = "Не указана"
	}
	if t.SubmissionDeadline != nil {
		card.Deadline = t.SubmissionDeadline.Format("02.01.2006 15:04")
		card.DeadlineTS = t.SubmissionDeadline.Unix()
	} else {
		card.Deadline = "Не указан"
	}
	if t.PublishedDate != nil {
		card.Published = t.PublishedDate.Format("02.01.2006")
	}
	switch {
	case card.Score >= scoreHigh:
		card.ScoreClass = "high"
	case card.Score >= scoreMedium:
		card.ScoreClass = "medium"
	default:
		card.ScoreClass = "low"
	}
	if m.AI != nil {
		card.AILine = fmt.Sprintf("AI: %d%% — %s", m.AI.Confidence, m.AI.Reason)
	}
	return card
}
