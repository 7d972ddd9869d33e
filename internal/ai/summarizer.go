package ai

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

const (
	summaryCachePrefix = "tender-monitor:ai:summary:"
	summaryCacheTTL    = 7 * 24 * time.Hour
	summaryCacheMax    = 1000

	summaryMaxInputChars = 15000
	summaryMaxTokens     = 500
)

const summarySystemPrompt = `Ты эксперт по госзакупкам России. Создай краткое резюме тендера на русском языке.

Формат ответа (строго соблюдай):
📋 СУТЬ: [1 предложение - что закупают]
💰 БЮДЖЕТ: [сумма и условия оплаты если указаны]
📅 СРОКИ: [дедлайн подачи, срок исполнения]
⚠️ ТРЕБОВАНИЯ: [ключевые требования к участнику, лицензии, опыт]
🚩 РИСКИ: [потенциальные проблемы если есть, иначе "Не выявлены"]

Важно:
- Будь кратким, каждый пункт - 1-2 предложения
- Выделяй только важную для участника информацию
- Если информация отсутствует - пиши "Не указано"
- Не придумывай информацию`

// TierHasAIFeatures reports whether the tier includes AI enrichment
// (summaries, document extraction).
func TierHasAIFeatures(tier domain.Tier) bool {
	return tier == domain.TierPremium || tier == domain.TierAdmin
}

// Summarizer produces short structured tender summaries. Results are cached
// by a hash of the input text because the same tender is summarized for many
// users.
type Summarizer struct {
	llm   *Client
	cache textCache
}

// NewSummarizer builds a Summarizer. rdb may be nil.
func NewSummarizer(llm *Client, rdb *redis.Client) *Summarizer {
	return &Summarizer{
		llm:   llm,
		cache: newTextCache(rdb, summaryCachePrefix, summaryCacheTTL, summaryCacheMax),
	}
}

// Summarize returns a short summary of the tender text and whether it was AI
// generated. Non-AI tiers and every failure path get the deterministic
// composition from the known tender fields.
func (s *Summarizer) Summarize(ctx context.Context, text string, t *domain.Tender, tier domain.Tier) (string, bool) {
	if !TierHasAIFeatures(tier) || !s.llm.Enabled() || text == "" {
		return fallbackSummary(t), false
	}

	key := textHashKey(text)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, true
	}

	messages := []ChatMessage{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: truncate(text, summaryMaxInputChars)},
	}
	summary, err := s.llm.Complete(ctx, messages, 0.3, summaryMaxTokens)
	if err != nil || summary == "" {
		log.Printf("[AISummary] generation failed for tender %s: %v", t.Number, err)
		return fallbackSummary(t), false
	}

	s.cache.Put(ctx, key, summary)
	return summary, true
}

func fallbackSummary(t *domain.Tender) string {
	name := t.Name
	if name == "" {
		name = "Без названия"
	}
	if len([]rune(name)) > 200 {
		name = string([]rune(name)[:200]) + "..."
	}

	price := t.PriceFormatted()
	if price == "" {
		price = "Не указана"
	}
	deadline := "Не указаны"
	if t.SubmissionDeadline != nil {
		deadline = t.SubmissionDeadline.Format("02.01.2006 15:04")
	}

	return "📋 СУТЬ: " + name + "\n" +
		"💰 БЮДЖЕТ: " + price + "\n" +
		"📅 СРОКИ: " + deadline + "\n" +
		"⚠️ ТРЕБОВАНИЯ: См. документацию тендера\n" +
		"🚩 РИСКИ: Требуется детальный анализ"
}
