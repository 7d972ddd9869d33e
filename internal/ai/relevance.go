package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// Source tells the caller how a relevance verdict was produced.
type Source string

const (
	SourceAI            Source = "ai"
	SourceCache         Source = "cache"
	SourceQuotaExceeded Source = "quota_exceeded"
	SourceError         Source = "error"
	SourceFallback      Source = "fallback"
)

// Verdicts below this confidence are treated as rejections even when the
// model marked the tender relevant.
const confidenceFloor = 85

const (
	relevanceCachePrefix = "tender-monitor:ai:relevance:"
	relevanceCacheTTL    = 24 * time.Hour
	relevanceCacheMax    = 10000
)

// CheckRequest carries one tender/filter pair through the relevance check.
type CheckRequest struct {
	TenderName        string
	TenderDescription string
	FilterIntent      string
	FilterKeywords    []string
	TenderTypes       []domain.TenderType

	// UserID 0 means "no quota accounting" (system-initiated checks).
	UserID int64
	Tier   domain.Tier
}

// CheckResult is the relevance verdict.
type CheckResult struct {
	IsRelevant bool   `json:"is_relevant"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
	Source     Source `json:"source"`
	// QuotaRemaining is -1 when no quota accounting applies.
	QuotaRemaining int `json:"quota_remaining"`
}

// cachedVerdict is the cache payload; the source is recomputed on read.
type cachedVerdict struct {
	IsRelevant bool   `json:"is_relevant"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// Checker answers "would a domain expert consider this tender relevant to
// this filter's intent?". The bias is conservative: on doubt it rejects, but
// on infrastructure failure it fails open so leads are not silently lost.
type Checker struct {
	llm   *Client
	cache textCache
	quota *QuotaStore
}

// NewChecker builds a Checker. rdb may be nil; the cache and quota counters
// then live in process memory only.
func NewChecker(llm *Client, rdb *redis.Client) *Checker {
	return &Checker{
		llm:   llm,
		cache: newTextCache(rdb, relevanceCachePrefix, relevanceCacheTTL, relevanceCacheMax),
		quota: NewQuotaStore(rdb),
	}
}

// Quota exposes the underlying quota store for status commands.
func (c *Checker) Quota() *QuotaStore {
	return c.quota
}

// Check runs the relevance pipeline: quota, cache, LLM, threshold.
func (c *Checker) Check(ctx context.Context, req CheckRequest) CheckResult {
	if req.UserID != 0 && !c.quota.Allow(ctx, req.UserID, req.Tier) {
		log.Printf("[AICheck] quota exhausted for user %d (%s)", req.UserID, req.Tier)
		return CheckResult{
			IsRelevant:     true,
			Confidence:     50,
			Reason:         "Квота AI проверок исчерпана, используется keyword matching",
			Source:         SourceQuotaExceeded,
			QuotaRemaining: 0,
		}
	}

	key := cacheKey(req.TenderName, req.FilterIntent)
	if raw, ok := c.cache.Get(ctx, key); ok {
		var v cachedVerdict
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return CheckResult{
				IsRelevant:     v.IsRelevant,
				Confidence:     v.Confidence,
				Reason:         v.Reason,
				Source:         SourceCache,
				QuotaRemaining: c.remainingFor(ctx, req),
			}
		}
	}

	if !c.llm.Enabled() {
		return CheckResult{
			IsRelevant:     true,
			Confidence:     50,
			Reason:         "AI недоступен, используется keyword matching",
			Source:         SourceFallback,
			QuotaRemaining: -1,
		}
	}

	verdict, err := c.callModel(ctx, req)
	if err != nil {
		log.Printf("[AICheck] model call failed: %v", err)
		return CheckResult{
			IsRelevant:     true,
			Confidence:     50,
			Reason:         "Ошибка AI: " + truncate(err.Error(), 50),
			Source:         SourceError,
			QuotaRemaining: -1,
		}
	}

	if encoded, err := json.Marshal(verdict); err == nil {
		c.cache.Put(ctx, key, string(encoded))
	}
	if req.UserID != 0 {
		c.quota.Increment(ctx, req.UserID)
	}

	return CheckResult{
		IsRelevant:     verdict.IsRelevant,
		Confidence:     verdict.Confidence,
		Reason:         verdict.Reason,
		Source:         SourceAI,
		QuotaRemaining: c.remainingFor(ctx, req),
	}
}

func (c *Checker) remainingFor(ctx context.Context, req CheckRequest) int {
	if req.UserID == 0 {
		return -1
	}
	return c.quota.Remaining(ctx, req.UserID, req.Tier)
}

// modelVerdict mirrors the JSON the prompt instructs the model to return.
type modelVerdict struct {
	Relevant   bool   `json:"relevant"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

func (c *Checker) callModel(ctx context.Context, req CheckRequest) (cachedVerdict, error) {
	prompt := buildRelevancePrompt(req)

	text, err := c.llm.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 0.1, 150)
	if err != nil {
		return cachedVerdict{}, err
	}

	blob, ok := extractJSONBlob(text)
	if !ok {
		return cachedVerdict{}, fmt.Errorf("no JSON object in model output: %q", truncate(text, 80))
	}
	var mv modelVerdict
	if err := json.Unmarshal(blob, &mv); err != nil {
		return cachedVerdict{}, fmt.Errorf("parse model verdict: %w", err)
	}

	verdict := cachedVerdict{
		IsRelevant: mv.Relevant,
		Confidence: mv.Confidence,
		Reason:     mv.Reason,
	}
	if verdict.Reason == "" {
		verdict.Reason = "Нет объяснения"
	}
	if verdict.Confidence < confidenceFloor && verdict.IsRelevant {
		verdict.IsRelevant = false
		verdict.Reason = fmt.Sprintf("Недостаточная уверенность (%d%%): %s", verdict.Confidence, verdict.Reason)
	}
	return verdict, nil
}

func buildRelevancePrompt(req CheckRequest) string {
	var b strings.Builder

	b.WriteString("Ты эксперт по госзакупкам. Определи, насколько тендер релевантен запросу пользователя.\n\n")
	b.WriteString("ЗАПРОС ПОЛЬЗОВАТЕЛЯ:\n")
	b.WriteString(req.FilterIntent)
	b.WriteString("\n\nКлючевые слова: ")
	b.WriteString(strings.Join(req.FilterKeywords, ", "))
	b.WriteString("\n")
	b.WriteString(typeInstruction(req.TenderTypes))
	b.WriteString("\nТЕНДЕР:\nНазвание: \"")
	b.WriteString(req.TenderName)
	b.WriteString("\"")
	if req.TenderDescription != "" {
		b.WriteString("\nОписание: ")
		b.WriteString(truncate(req.TenderDescription, 500))
	}
	b.WriteString(`

ПРИНЦИП ОЦЕНКИ:
1. Сначала проверь ТИП — если тип не совпадает (услуга вместо товара и наоборот), ОТКЛОНИ (confidence 5-10)
2. Затем проверь ТЕМУ — связан ли тендер с запросом по смыслу
3. Учитывай ложных друзей: "разработка" не означает разработку ПО, "обслуживание" не означает разработку
4. При сомнениях — ОТКЛОНЯЙ: лучше пропустить сомнительный тендер, чем показать нерелевантный
5. Одобряй с высоким confidence (85-100) только при явном тематическом совпадении

ПРИМЕРЫ ОТКЛОНЕНИЙ ПО ТИПУ (если фильтр ищет товары):
- "Услуга по ремонту офисной техники" → relevant=false, confidence=5, reason="услуга, не товар"
- "Техническое обслуживание компьютеров" → relevant=false, confidence=5, reason="услуга, не товар"

ПРИМЕРЫ ОТКЛОНЕНИЙ ПО ТЕМЕ:
- "Автомобиль легковой HAVAL" при запросе "компьютеры" → relevant=false, confidence=3
- "Разработка проектной документации на строительство" при запросе "разработка ПО" → relevant=false, confidence=5

Ответь СТРОГО в формате JSON:
{"relevant": true/false, "confidence": 0-100, "reason": "краткое объяснение на русском"}`)

	return b.String()
}

func typeInstruction(types []domain.TenderType) string {
	if len(types) == 0 {
		return ""
	}
	if len(types) == 1 && types[0] == domain.TenderGoods {
		return `
ТИП ЗАКУПКИ: Пользователь ищет ТОЛЬКО товары (поставки).
КРИТИЧЕСКИ ВАЖНО: Если тендер — это УСЛУГА или РАБОТА (ремонт, обслуживание, консультирование,
разработка документации, оказание услуг, выполнение работ, монтаж, проектирование) — ОТКЛОНИ с confidence 5-10.
Товары = поставка физических предметов (оборудование, техника, материалы, запчасти).
`
	}
	if len(types) == 1 && types[0] == domain.TenderServices {
		return `
ТИП ЗАКУПКИ: Пользователь ищет ТОЛЬКО услуги.
Если тендер — это ТОВАР (поставка оборудования, материалов) — ОТКЛОНИ с confidence 5-10.
`
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return "\nТИП ЗАКУПКИ: " + strings.Join(names, ", ") + "\n"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
