package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// GenerateIntent produces the detailed "what is this user actually looking
// for" description stored on the filter and fed to relevance checks. Called
// once on filter create/update. Best-effort: any failure yields a template
// built from the filter fields.
func (c *Checker) GenerateIntent(ctx context.Context, filterName string, keywords, excludeKeywords []string) string {
	fallback := fmt.Sprintf("Поиск тендеров по теме: %s. Ключевые слова: %s", filterName, strings.Join(keywords, ", "))

	if !c.llm.Enabled() {
		return fallback
	}

	prompt := buildIntentPrompt(filterName, keywords, excludeKeywords)
	intent, err := c.llm.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 0.3, 300)
	if err != nil {
		log.Printf("[AIIntent] generation failed for filter %q: %v", filterName, err)
		return fallback
	}
	if intent == "" {
		return fallback
	}
	log.Printf("[AIIntent] generated intent for filter %q: %s", filterName, truncate(intent, 100))
	return intent
}

// RelatedTerms asks the model for extra search terms to suggest to the user.
// Returns nil on any failure.
func (c *Checker) RelatedTerms(ctx context.Context, filterName string, keywords []string) []string {
	if !c.llm.Enabled() {
		return nil
	}

	prompt := fmt.Sprintf(`Ты эксперт по государственным закупкам России.

Пользователь ищет тендеры: "%s" (ключевые слова: %s).

Предложи до 5 дополнительных поисковых терминов, которые встречаются в названиях
таких тендеров: синонимы, профессиональные термины, варианты написания.

Ответь СТРОГО списком терминов через запятую, без нумерации и пояснений.`, filterName, strings.Join(keywords, ", "))

	text, err := c.llm.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 0.3, 150)
	if err != nil {
		log.Printf("[AIIntent] related terms failed for filter %q: %v", filterName, err)
		return nil
	}

	var terms []string
	for _, part := range strings.Split(text, ",") {
		term := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), ".\"'"))
		if term != "" {
			terms = append(terms, term)
		}
		if len(terms) == 5 {
			break
		}
	}
	return terms
}

func buildIntentPrompt(filterName string, keywords, excludeKeywords []string) string {
	exclude := ""
	if len(excludeKeywords) > 0 {
		exclude = "\nИсключить: " + strings.Join(excludeKeywords, ", ")
	}

	return fmt.Sprintf(`Ты эксперт по государственным закупкам России.

Пользователь создал фильтр для поиска тендеров:
- Название фильтра: "%s"
- Ключевые слова: %s%s

Твоя задача: Опиши ДЕТАЛЬНО, какие именно тендеры ищет пользователь.

Включи:
1. Основная сфера деятельности (IT, строительство, логистика, etc.)
2. Конкретные товары/услуги/работы
3. Что точно НЕ подходит (ложные срабатывания)

Формат ответа — связный текст 2-3 предложения, который поможет
определить, релевантен ли конкретный тендер этому запросу.

Пример для "разработка ПО":
"Пользователь ищет тендеры на разработку программного обеспечения,
включая создание сайтов, мобильных приложений, информационных систем,
автоматизацию бизнес-процессов. НЕ подходят: разработка проектной документации
на строительство, разработка месторождений, разработка охранных зон —
это другие отрасли несмотря на слово 'разработка'."

Напиши intent для данного фильтра:`, filterName, strings.Join(keywords, ", "), exclude)
}
