package portal

import (
	"bytes"
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// Card enrichment is best-effort: any failure returns the input tender
// unmodified with a warning logged, never an error to the caller.

var (
	cityAtEndRegex   = regexp.MustCompile(`(?i)([А-Яа-яЁё-]+)\s*г(?:ород)?\.?$`)
	cityAtStartRegex = regexp.MustCompile(`(?i)^г\.?\s*([А-Яа-яЁё-]+)`)
	cityWordRegex    = regexp.MustCompile(`(?i)город\s+([А-Яа-яЁё-]+)`)
)

// EnrichFromCard loads the tender's HTML card and fills in price, deadline,
// customer and address fields that the RSS summary lacks. Fields already
// present are kept; only gaps are filled. The tender name is replaced when
// the feed delivered a boilerplate or truncated title.
func (c *Client) EnrichFromCard(ctx context.Context, t domain.Tender) domain.Tender {
	if t.URL == "" {
		return t
	}

	body, err := c.fetch(ctx, t.URL)
	if err != nil {
		log.Printf("[Portal] card fetch failed for %s: %v", t.Number, err)
		return t
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		log.Printf("[Portal] card parse failed for %s: %v", t.Number, err)
		return t
	}

	if t.Price == 0 {
		for _, key := range []string{"Максимальное значение цены контракта", "Начальная (максимальная) цена контракта", "Начальная цена"} {
			if v := cardValue(doc, key); v != "" {
				if price := parsePriceText(v); price > 100 {
					t.Price = price
					break
				}
			}
		}
	}

	if t.SubmissionDeadline == nil {
		for _, key := range []string{"Дата и время окончания срока подачи заявок", "Окончание подачи заявок", "Окончание срока подачи заявок"} {
			if v := cardValue(doc, key); v != "" {
				if dl := parseDeadline(v); dl != nil {
					t.SubmissionDeadline = dl
					break
				}
			}
		}
	}

	if addr := firstCardValue(doc, "Почтовый адрес", "Место нахождения"); addr != "" {
		t.CustomerAddress = addr
		region, city := parseAddress(addr)
		if t.CustomerRegion == "" && region != "" {
			t.CustomerRegion = region
		}
		if city != "" {
			t.CustomerCity = city
		}
	}

	if t.CustomerName == "" {
		t.CustomerName = firstCardValue(doc,
			"Организация, осуществляющая размещение",
			"Наименование заказчика",
			"Заказчик")
	}

	if isBureaucratic(t.Name) || len([]rune(t.Name)) < 20 {
		obj := extractCardPurchaseObject(doc)
		if obj == "" {
			obj = c.purchaseObjectFromTab(ctx, t.URL)
		}
		if len([]rune(obj)) > 10 {
			t.Name = obj
		}
	}

	t.Enriched = true
	return t
}

// purchaseObjectFromTab fetches the purchase-objects tab of the card, which
// lists object names when the common-info page carries only boilerplate.
func (c *Client) purchaseObjectFromTab(ctx context.Context, cardURL string) string {
	tabURL := strings.Replace(cardURL, "common-info.html", "purchase-objects.html", 1)
	if tabURL == cardURL {
		return ""
	}
	body, err := c.fetch(ctx, tabURL)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return extractCardPurchaseObject(doc)
}

func extractCardPurchaseObject(doc *goquery.Document) string {
	for _, key := range []string{"Наименование объекта закупки", "Объект закупки", "Предмет контракта"} {
		if v := cardValue(doc, key); v != "" && !isBureaucratic(v) {
			return v
		}
	}
	// Object tables on the purchase-objects tab.
	var obj string
	doc.Find("td.tableBlock__col").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := normalizeSpace(s.Text())
		if len([]rune(text)) > 15 && !isBureaucratic(text) {
			obj = text
			return false
		}
		return true
	})
	return obj
}

// cardValue finds the value span paired with a section or card-header title.
// The card uses two layouts: section__title/section__info pairs and the
// cardMainInfo__title/cardMainInfo__content header block.
func cardValue(doc *goquery.Document, title string) string {
	var value string
	doc.Find("span.section__title, span.cardMainInfo__title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(normalizeSpace(s.Text()), title) {
			return true
		}
		sib := s.NextFiltered("span.section__info, span.cardMainInfo__content")
		if sib.Length() == 0 {
			sib = s.Siblings().Filter("span.section__info, span.cardMainInfo__content").First()
		}
		if sib.Length() > 0 {
			value = normalizeSpace(sib.Text())
			return false
		}
		return true
	})
	return value
}

func firstCardValue(doc *goquery.Document, titles ...string) string {
	for _, title := range titles {
		if v := cardValue(doc, title); len([]rune(v)) > 3 {
			return v
		}
	}
	return ""
}

// Address abbreviations expanded token-wise, so "область" itself is never
// touched.
var regionExpansions = map[string]string{
	"респ":  "Республика",
	"респ.": "Республика",
	"обл":   "область",
	"обл.":  "область",
	"аобл":  "автономная область",
}

// parseAddress splits a postal address like
// "670000, Респ Бурятия, г Улан-Удэ, ул Ленина, дом 30"
// into a region ("Республика Бурятия") and a city ("г. Улан-Удэ").
func parseAddress(address string) (region, city string) {
	for _, part := range strings.Split(address, ",") {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)

		if city == "" && looksLikeCityPart(lower) {
			if m := cityAtEndRegex.FindStringSubmatch(part); m != nil {
				city = "г. " + m[1]
			} else if m := cityAtStartRegex.FindStringSubmatch(part); m != nil {
				city = "г. " + m[1]
			} else if m := cityWordRegex.FindStringSubmatch(part); m != nil {
				city = "г. " + m[1]
			}
		}

		if containsAny(lower, "респ", "область", "обл", "край", "округ") {
			tokens := strings.Fields(part)
			for i, tok := range tokens {
				if full, ok := regionExpansions[strings.ToLower(tok)]; ok {
					tokens[i] = full
				}
			}
			region = strings.Join(tokens, " ")
		}

		// Federal cities are their own regions. Guarded so a street named
		// "Петербургская" does not override a real region.
		switch {
		case strings.Contains(lower, "москва") && region == "":
			city, region = "г. Москва", "Москва"
		case region == "" && (strings.Contains(lower, "санкт-петербург") || lower == "спб" || lower == "с-петербург"):
			city, region = "г. Санкт-Петербург", "Санкт-Петербург"
		case strings.Contains(lower, "севастополь") && region == "":
			city, region = "г. Севастополь", "Севастополь"
		}
	}
	return region, city
}

// looksLikeCityPart mirrors the address formats "г Улан-Удэ", "г. Москва",
// "Прохладный г", "город Казань".
func looksLikeCityPart(lower string) bool {
	return strings.HasPrefix(lower, "г ") || strings.HasPrefix(lower, "г.") ||
		strings.HasSuffix(lower, " г") || strings.Contains(lower, "город")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}
