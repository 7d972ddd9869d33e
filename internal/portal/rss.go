package portal

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// Portal timestamps are Moscow time.
var mskZone = time.FixedZone("MSK", 3*60*60)

var (
	numberRegex = regexp.MustCompile(`regNumber=([A-Z0-9]+)`)
	tagRegex    = regexp.MustCompile(`<[^>]+>`)
	spaceRegex  = regexp.MustCompile(`\s+`)

	// Purchase-object patterns, most specific first. The RSS summary is HTML;
	// the value sits between the closing </strong> and the next tag.
	purchaseObjectRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<strong>Наименование объекта закупки:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)Наименование объекта закупки:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)<strong>Объект закупки:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)Объект закупки:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)<strong>Предмет (?:контракта|закупки):\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)<strong>Краткое описание:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)<strong>Наименование товара[^:]*:\s*</strong>([^<]+)`),
	}

	priceRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Начальная.*?цена.*?контракта[:\s]*</strong>\s*([0-9\s,.]+)`),
		regexp.MustCompile(`(?is)НМЦК[:\s]+([0-9\s,.]+)`),
		regexp.MustCompile(`(?is)Начальная.*?цена[:\s]+([0-9\s,.]+)`),
		regexp.MustCompile(`(?is)Максимальная.*?цена[:\s]+([0-9\s,.]+)`),
		regexp.MustCompile(`(?is)цена контракта[:\s]+([0-9\s,.]+)`),
	}

	customerRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<strong>Наименование Заказчика:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)<strong>Заказчик:\s*</strong>([^<]+)`),
		regexp.MustCompile(`(?i)Заказчик:\s*([^<\n]+)`),
	}

	deadlineRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:Окончание подачи заявок|Дата окончания подачи заявок|Срок подачи заявок)[:\s]*</strong>\s*([0-9.]+(?:\s+[0-9:]+)?)`),
		regexp.MustCompile(`(?is)(?:Окончание подачи заявок|Дата окончания подачи заявок|Срок подачи заявок)[:\s]+([0-9.]+(?:\s+[0-9:]+)?)`),
		regexp.MustCompile(`(?is)до\s+([0-9.]+\s+[0-9:]+)`),
		regexp.MustCompile(`(?is)Дата и время окончания.*?([0-9]{2}\.[0-9]{2}\.[0-9]{4}(?:\s+[0-9:]+)?)`),
		regexp.MustCompile(`(?is)окончани[ея]\s+[^0-9]*([0-9]{2}\.[0-9]{2}\.[0-9]{4}(?:\s+[0-9]{2}:[0-9]{2})?)`),
	}

	deadlineFormatRegex = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}`)
	cityRegex           = regexp.MustCompile(`(?:г\.|город)\s*([А-Яа-яЁё-]+)`)
)

// Phrases marking the portal's boilerplate names ("purchase per article 93 …")
// that should be replaced by the real purchase object.
var bureaucraticPhrases = []string{
	"в соответствии с",
	"статьи 93",
	"закона № 44",
	"закона №44",
	"осуществляемая в соответствии",
	"частью 12",
}

// regionsByName is the lookup list for recovering a region from customer
// names, including common short forms.
var regionsByName = []string{
	"Москва", "Московская область", "Санкт-Петербург", "Ленинградская область",
	"Республика Татарстан", "Татарстан", "Краснодарский край", "Свердловская область",
	"Новосибирская область", "Ростовская область", "Нижегородская область",
	"Челябинская область", "Самарская область", "Республика Башкортостан", "Башкортостан",
	"Красноярский край", "Пермский край", "Воронежская область", "Волгоградская область",
	"Саратовская область", "Тюменская область", "Омская область", "Кемеровская область",
	"Оренбургская область", "Иркутская область", "Алтайский край", "Приморский край",
	"Ставропольский край", "Белгородская область", "Тульская область", "Калужская область",
	"Ярославская область", "Владимирская область", "Рязанская область", "Тверская область",
	"Брянская область", "Курская область", "Липецкая область", "Тамбовская область",
	"Ханты-Мансийский", "ХМАО", "Ямало-Ненецкий", "ЯНАО",
	"Республика Крым", "Крым", "Севастополь",
	"Республика Дагестан", "Дагестан", "Чеченская Республика", "Чечня",
	"Хабаровский край", "Сахалинская область", "Камчатский край",
	"Мурманская область", "Архангельская область", "Вологодская область",
	"Калининградская область", "Псковская область", "Новгородская область",
}

// parseItem converts one RSS entry into a Tender. Returns false when the
// entry carries no usable name.
func parseItem(item *gofeed.Item) (domain.Tender, bool) {
	link := item.Link
	if link != "" && !strings.HasPrefix(link, "http") {
		link = "https://zakupki.gov.ru" + link
	}

	t := domain.Tender{
		Number: extractNumber(item.Link),
		Name:   html.UnescapeString(strings.TrimSpace(item.Title)),
		URL:    link,
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	// The purchase object from the summary beats the feed title, which is
	// often just the registration number or boilerplate.
	if obj := extractPurchaseObject(summary); obj != "" {
		t.Name = obj
	}
	t.Description = summaryText(summary)
	t.Price = extractPrice(summary)
	t.CustomerName = extractCustomer(summary)
	if t.CustomerName != "" {
		t.CustomerRegion = extractRegionFromCustomer(t.CustomerName)
	}
	if dl := extractDeadline(summary); dl != nil {
		t.SubmissionDeadline = dl
	}
	if kind := extractTenderType(summary); kind != "" {
		t.Type = kind
	}
	if item.PublishedParsed != nil {
		published := item.PublishedParsed.In(mskZone)
		t.PublishedDate = &published
	}

	return t, t.Name != ""
}

func extractNumber(link string) string {
	if m := numberRegex.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

func extractPurchaseObject(summary string) string {
	for _, re := range purchaseObjectRegexes {
		m := re.FindStringSubmatch(summary)
		if m == nil {
			continue
		}
		obj := html.UnescapeString(spaceRegex.ReplaceAllString(strings.TrimSpace(m[1]), " "))
		if isBureaucratic(obj) || len([]rune(obj)) < 10 {
			continue
		}
		return obj
	}
	return ""
}

func isBureaucratic(name string) bool {
	lower := strings.ToLower(name)
	for _, phrase := range bureaucraticPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func extractPrice(text string) float64 {
	for _, re := range priceRegexes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if price := parsePriceText(m[1]); price > 100 {
			return price
		}
	}
	return 0
}

// parsePriceText normalizes "1 234 567,89" style numbers. Returns 0 on
// anything it cannot parse.
func parsePriceText(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteByte('.')
		}
	}
	price, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return price
}

func extractCustomer(summary string) string {
	for _, re := range customerRegexes {
		if m := re.FindStringSubmatch(summary); m != nil {
			return html.UnescapeString(spaceRegex.ReplaceAllString(strings.TrimSpace(m[1]), " "))
		}
	}
	return ""
}

func extractRegionFromCustomer(customer string) string {
	upper := strings.ToUpper(customer)
	for _, region := range regionsByName {
		if strings.Contains(upper, strings.ToUpper(region)) {
			return region
		}
	}
	if m := cityRegex.FindStringSubmatch(customer); m != nil {
		return "г. " + m[1]
	}
	return ""
}

func extractDeadline(summary string) *time.Time {
	for _, re := range deadlineRegexes {
		m := re.FindStringSubmatch(summary)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		if !deadlineFormatRegex.MatchString(raw) {
			continue
		}
		if dl := parseDeadline(raw); dl != nil {
			return dl
		}
	}
	return nil
}

// parseDeadline accepts "02.01.2006" with an optional "15:04" suffix.
func parseDeadline(raw string) *time.Time {
	for _, layout := range []string{"02.01.2006 15:04", "02.01.2006"} {
		if t, err := time.ParseInLocation(layout, raw, mskZone); err == nil {
			return &t
		}
	}
	// Drop a trailing fragment (seconds, stray tokens) and retry date-only.
	if fields := strings.Fields(raw); len(fields) > 0 {
		if t, err := time.ParseInLocation("02.01.2006", fields[0], mskZone); err == nil {
			return &t
		}
	}
	return nil
}

func extractTenderType(summary string) domain.TenderType {
	lower := strings.ToLower(summary)
	switch {
	case strings.Contains(lower, "поставка товар"):
		return domain.TenderGoods
	case strings.Contains(lower, "выполнение работ"):
		return domain.TenderWorks
	case strings.Contains(lower, "оказание услуг"):
		return domain.TenderServices
	}
	return ""
}

// summaryText strips tags from the HTML summary for downstream text scoring.
func summaryText(summary string) string {
	text := tagRegex.ReplaceAllString(summary, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(spaceRegex.ReplaceAllString(text, " "))
}
