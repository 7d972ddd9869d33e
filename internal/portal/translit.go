package portal

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// The portal's RSS search handles Latin text poorly, so Latin brand names are
// transliterated into Cyrillic and both variants are searched. The brand list
// is checked longest-first so "atlas copco" wins over "atlas".

type brandPair struct {
	latin    string
	cyrillic string
}

var brandPairs = []brandPair{
	{"schneider electric", "Шнейдер Электрик"},
	{"hewlett packard", "Хьюлетт Паккард"},
	{"ge healthcare", "Джи И Хелскеа"},
	{"atlas copco", "Атлас Копко"},
	{"caterpillar", "Катерпиллер"},
	{"volkswagen", "Фольксваген"},
	{"mitsubishi", "Митсубиси"},
	{"schneider", "Шнейдер"},
	{"honeywell", "Хонейвелл"},
	{"grundfos", "Грундфос"},
	{"yokogawa", "Йокогава"},
	{"mercedes", "Мерседес"},
	{"fujitsu", "Фуджитсу"},
	{"siemens", "Сименс"},
	{"danfoss", "Данфосс"},
	{"legrand", "Легранд"},
	{"komatsu", "Комацу"},
	{"hitachi", "Хитачи"},
	{"samsung", "Самсунг"},
	{"philips", "Филипс"},
	{"mindray", "Миндрей"},
	{"makita", "Макита"},
	{"dewalt", "Деволт"},
	{"metabo", "Метабо"},
	{"daikin", "Дайкин"},
	{"lenovo", "Леново"},
	{"toyota", "Тойота"},
	{"scania", "Скания"},
	{"bosch", "Бош"},
	{"hilti", "Хилти"},
	{"omron", "Омрон"},
	{"cisco", "Циско"},
	{"volvo", "Вольво"},
	{"atlas", "Атлас"},
	{"copco", "Копко"},
	{"ebara", "Эбара"},
	{"wilo", "Вило"},
	{"dell", "Делл"},
	{"abb", "АББ"},
	{"iek", "ИЭК"},
	{"ibm", "АйБиЭм"},
	{"man", "МАН"},
	{"cat", "Кат"},
	{"hp", "ХП"},
	{"lg", "Эл Джи"},
}

// Digraphs first, then single letters, for the fallback letter-by-letter
// transliteration of words not in the brand list.
var charDigraphs = []struct{ lat, cyr string }{
	{"sch", "щ"},
	{"sh", "ш"},
	{"ch", "ч"},
	{"zh", "ж"},
	{"ts", "ц"},
	{"yo", "ё"},
	{"yu", "ю"},
	{"ya", "я"},
}

var charSingles = map[rune]string{
	'a': "а", 'b': "б", 'v': "в", 'g': "г", 'd': "д",
	'e': "е", 'z': "з", 'i': "и", 'y': "й", 'k': "к",
	'l': "л", 'm': "м", 'n': "н", 'o': "о", 'p': "п",
	'r': "р", 's': "с", 't': "т", 'u': "у", 'f': "ф",
	'h': "х", 'w': "в", 'x': "кс", 'j': "дж", 'c': "к", 'q': "к",
}

// HasLatin reports whether the text contains Latin letters.
func HasLatin(text string) bool {
	for _, r := range text {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// HasCyrillic reports whether the text contains Cyrillic letters.
func HasCyrillic(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// Transliterate converts Latin text to Cyrillic: known brands by dictionary,
// remaining Latin words letter-by-letter.
func Transliterate(text string) string {
	if text == "" {
		return text
	}
	for _, pair := range brandPairs {
		text = replaceAllFold(text, pair.latin, pair.cyrillic)
	}
	if !HasLatin(text) {
		return text
	}
	return transliterateChars(text)
}

// ToLatin converts known Cyrillic brand names back to Latin. Non-brand
// Cyrillic text is left as-is.
func ToLatin(text string) string {
	for _, pair := range brandPairs {
		text = replaceAllFold(text, strings.ToLower(pair.cyrillic), pair.latin)
	}
	return text
}

// SearchVariants returns the query plus at most one transliteration variant.
// Latin queries gain a Cyrillic variant and vice versa for known brands.
func SearchVariants(query string) []string {
	variants := []string{query}
	var alt string
	switch {
	case HasLatin(query):
		alt = Transliterate(query)
	case HasCyrillic(query):
		alt = ToLatin(query)
	}
	if alt != "" && !strings.EqualFold(alt, query) {
		variants = append(variants, alt)
	}
	return variants
}

func transliterateChars(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	i := 0
	for i < len(lower) {
		matched := false
		for _, d := range charDigraphs {
			if strings.HasPrefix(lower[i:], d.lat) {
				b.WriteString(d.cyr)
				i += len(d.lat)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		r := rune(lower[i])
		if cyr, ok := charSingles[r]; ok {
			b.WriteString(cyr)
			i++
			continue
		}
		// Non-Latin runes (already Cyrillic, digits, punctuation) pass through.
		_, size := utf8.DecodeRuneInString(lower[i:])
		b.WriteString(lower[i : i+size])
		i += size
	}
	return b.String()
}

func replaceAllFold(s, old, new string) string {
	if old == "" {
		return s
	}
	var b strings.Builder
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	for {
		idx := strings.Index(lower, oldLower)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		b.WriteString(new)
		s = s[idx+len(oldLower):]
		lower = lower[idx+len(oldLower):]
	}
}
