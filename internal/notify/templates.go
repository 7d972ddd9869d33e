package notify

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// AIVerdict is the relevance information shown in the notification when the
// tender passed an AI check.
type AIVerdict struct {
	Confidence int
	Reason     string
}

// tenderMessageTemplate renders one tender notification. HTML parse mode, so
// user-supplied strings go through the escape filter.
const tenderMessageTemplate = `{{ score_emoji }} <b>Новый тендер!</b> 📊 {{ sent_today }}/{{ daily_limit }}

<b>{{ name | escape | rune_truncate: 80 }}</b>

💰 <b>Цена:</b> {{ price }}
⏰ <b>Подача до:</b> {{ deadline }}{% if region != "" %}
📍 {{ region | escape }}{% endif %}{% if customer != "" %}
🏢 {{ customer | escape | rune_truncate: 40 }}{% endif %}
🎯 <b>Фильтр:</b> {{ filter_name | escape }}{% if ai_line != "" %}
🤖 {{ ai_line | escape }}{% endif %}{% if red_flags != "" %}
🚩 {{ red_flags | escape }}{% endif %}
🔗 № {{ number }}`

const quotaNoticeTemplate = `⚠️ <b>Дневной лимит уведомлений исчерпан</b>

Ваш тариф <b>{{ tier }}</b> позволяет получать до {{ daily_limit }} уведомлений в сутки.
Новые тендеры продолжают отслеживаться и будут доступны после сброса лимита.

Чтобы увеличить лимит, перейдите на расширенный тариф.`

// TemplateEngine renders notification messages through Liquid with a parsed
// template cache.
type TemplateEngine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *TemplateEngine) registerFilters() {
	e.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Truncation that never splits a multibyte character.
	e.engine.RegisterFilter("rune_truncate", func(s string, length int) string {
		runes := []rune(s)
		if len(runes) <= length {
			return s
		}
		if length <= 3 {
			return string(runes[:length])
		}
		return string(runes[:length-3]) + "..."
	})
}

// RenderTender produces the chat message for one matched tender.
func (e *TemplateEngine) RenderTender(n *domain.Notification, sentToday, dailyLimit int, ai *AIVerdict) (string, error) {
	price := "Не указана"
	if n.TenderPrice > 0 {
		price = formatPrice(n.TenderPrice)
	}
	deadline := "Не указан"
	if n.SubmissionDeadline != nil {
		deadline = n.SubmissionDeadline.Format("02.01.2006")
	}
	aiLine := ""
	if ai != nil {
		aiLine = fmt.Sprintf("AI: %d%% — %s", ai.Confidence, ai.Reason)
	}
	flags := n.RedFlags
	if len(flags) > 3 {
		flags = flags[:3]
	}

	bindings := map[string]any{
		"score_emoji": scoreEmoji(n.Score),
		"sent_today":  sentToday,
		"daily_limit": dailyLimit,
		"name":        n.TenderName,
		"price":       price,
		"deadline":    deadline,
		"region":      n.TenderRegion,
		"customer":    n.TenderCustomer,
		"filter_name": n.FilterName,
		"ai_line":     aiLine,
		"red_flags":   strings.Join(flags, " | "),
		"number":      n.TenderNumber,
	}
	return e.render("tender", tenderMessageTemplate, bindings)
}

// RenderQuotaNotice produces the one-per-window quota exhaustion message.
func (e *TemplateEngine) RenderQuotaNotice(tier domain.Tier, dailyLimit int) (string, error) {
	return e.render("quota", quotaNoticeTemplate, map[string]any{
		"tier":        tierDisplayName(tier),
		"daily_limit": dailyLimit,
	})
}

func (e *TemplateEngine) render(cacheKey, templateStr string, bindings map[string]any) (string, error) {
	if cached, ok := e.cache.Load(cacheKey); ok {
		return cached.(*liquid.Template).RenderString(bindings)
	}
	tpl, err := e.engine.ParseString(templateStr)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", cacheKey, err)
	}
	e.cache.Store(cacheKey, tpl)
	return tpl.RenderString(bindings)
}

func scoreEmoji(score int) string {
	switch {
	case score >= 80:
		return "🔥"
	case score >= 60:
		return "✨"
	default:
		return "📌"
	}
}

func tierDisplayName(tier domain.Tier) string {
	switch tier {
	case domain.TierTrial:
		return "Пробный"
	case domain.TierBasic:
		return "Базовый"
	case domain.TierPremium:
		return "Премиум"
	case domain.TierAdmin:
		return "Администратор"
	default:
		return string(tier)
	}
}

// formatPrice renders "2500000" as "2 500 000 ₽".
func formatPrice(price float64) string {
	s := fmt.Sprintf("%.0f", price)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteString(" ₽")
	return b.String()
}
