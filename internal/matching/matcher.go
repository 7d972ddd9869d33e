// Package matching implements the deterministic tender scoring engine: hard
// filters that reject outright plus an explainable relevance score in
// [0, 100]. Scores of 85 and above are treated by the pipeline as strong
// enough to skip the semantic AI check.
package matching

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// Scoring weights.
const (
	pointsCompound   = 35
	pointsDirect     = 25
	pointsShort      = 25
	pointsRoot       = 18
	pointsSynonym    = 20
	pointsBrand      = 22
	pointsAbbrev     = 22
	maxPriceBonus    = 20
	bonusToday       = 10
	bonusRecent      = 5
	shortKeyRunes    = 4
)

// Matcher scores tenders against filters using the loaded dictionaries.
// Safe for concurrent use.
type Matcher struct {
	dict *Dictionaries
}

// New builds a Matcher. A nil dict selects the embedded default tables.
func New(dict *Dictionaries) *Matcher {
	if dict == nil {
		dict = DefaultDictionaries()
	}
	return &Matcher{dict: dict}
}

// Match evaluates one tender against one filter. Returns nil when a hard
// filter rejects the tender or no keyword matches. The only error is the
// contract violation of a keywordless filter reaching scoring.
func (m *Matcher) Match(t *domain.Tender, f *domain.Filter, now time.Time) (*domain.MatchResult, error) {
	if len(f.Keywords) == 0 {
		return nil, domain.ErrEmptyKeywords
	}

	text := t.SearchableText()

	// Hard filters, cheapest first.
	for _, exclude := range f.ExcludeKeywords {
		if matchKeywordBoundary(text, strings.ToLower(strings.TrimSpace(exclude))) {
			return nil, nil
		}
	}
	for _, pattern := range m.dict.NegativePatterns {
		if strings.Contains(text, pattern) {
			return nil, nil
		}
	}
	if t.Price > 0 {
		if f.PriceMin != nil && t.Price < *f.PriceMin {
			return nil, nil
		}
		if f.PriceMax != nil && t.Price > *f.PriceMax {
			return nil, nil
		}
	}
	// Unknown region passes; the decision is deferred to enrichment.
	if len(f.Regions) > 0 && t.CustomerRegion != "" && !regionMatches(f.Regions, t.CustomerRegion) {
		return nil, nil
	}
	if f.GoodsOnly() {
		nameLower := strings.ToLower(t.Name)
		for _, ind := range m.dict.ServiceIndicators {
			if strings.Contains(nameLower, ind) {
				return nil, nil
			}
		}
	}
	if t.SubmissionDeadline != nil {
		switch f.EffectiveStage() {
		case domain.StageSubmission:
			if t.SubmissionDeadline.Before(now) {
				return nil, nil
			}
		case domain.StageArchive:
			if !t.SubmissionDeadline.Before(now) {
				return nil, nil
			}
		}
	}
	if f.PublicationDays > 0 && t.PublishedDate != nil {
		maxAge := time.Duration(f.PublicationDays) * 24 * time.Hour
		if now.Sub(*t.PublishedDate) > maxAge {
			return nil, nil
		}
	}

	keys := m.prepareKeys(f.Keywords)
	if len(keys) == 0 {
		return nil, nil
	}

	var (
		score    float64
		matched  []string
		reasons  []string
	)
	for _, key := range keys {
		pts, reason := m.scoreKey(text, key)
		if pts == 0 {
			continue
		}
		score += float64(pts)
		matched = append(matched, key.original)
		reasons = append(reasons, reason)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	// Coverage adjustment.
	ratio := float64(len(matched)) / float64(len(keys))
	switch {
	case len(keys) >= 3 && ratio < 0.3:
		score *= 0.7
	case ratio >= 0.7:
		score *= 1.2
	}

	if bonus := priceCentralityBonus(t.Price, f.PriceMin, f.PriceMax); bonus > 0 {
		score += float64(bonus)
		reasons = append(reasons, fmt.Sprintf("цена в середине диапазона (+%d)", bonus))
	}
	if t.PublishedDate != nil {
		switch {
		case sameDay(*t.PublishedDate, now):
			score += bonusToday
			reasons = append(reasons, "опубликован сегодня")
		case now.Sub(*t.PublishedDate) <= 72*time.Hour:
			score += bonusRecent
			reasons = append(reasons, "опубликован недавно")
		}
	}

	final := int(math.Round(score))
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	return &domain.MatchResult{
		Score:           final,
		MatchedKeywords: matched,
		Reasons:         reasons,
		RedFlags:        redFlags(t, f, now),
	}, nil
}

// redFlags derives the warnings attached to a match: a submission window
// about to close, a price sitting on the edge of the filter band, an
// archival tender.
func redFlags(t *domain.Tender, f *domain.Filter, now time.Time) []string {
	var flags []string
	if t.SubmissionDeadline != nil {
		switch {
		case t.SubmissionDeadline.Before(now):
			flags = append(flags, "приём заявок завершён")
		case t.SubmissionDeadline.Sub(now) < 72*time.Hour:
			flags = append(flags, "до окончания подачи менее 3 дней")
		}
	}
	if t.Price > 0 && f.PriceMin != nil && f.PriceMax != nil && *f.PriceMax > *f.PriceMin {
		edge := (*f.PriceMax - *f.PriceMin) * 0.05
		if t.Price-*f.PriceMin <= edge || *f.PriceMax-t.Price <= edge {
			flags = append(flags, "цена на границе диапазона фильтра")
		}
	}
	return flags
}

type preparedKey struct {
	text     string
	original string
	compound *CompoundPhrase
}

// prepareKeys extracts compound phrases and drops stop-word keywords.
func (m *Matcher) prepareKeys(keywords []string) []preparedKey {
	var keys []preparedKey
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		lower := strings.ToLower(strings.TrimSpace(kw))
		if lower == "" {
			continue
		}
		if compound := m.dict.CompoundFor(lower); compound != nil {
			if _, dup := seen[compound.Phrase]; dup {
				continue
			}
			seen[compound.Phrase] = struct{}{}
			keys = append(keys, preparedKey{text: compound.Phrase, original: kw, compound: compound})
			continue
		}
		if m.dict.IsStopWord(lower) {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		keys = append(keys, preparedKey{text: lower, original: kw})
	}
	return keys
}

func (m *Matcher) scoreKey(text string, key preparedKey) (int, string) {
	if key.compound != nil {
		pts := 0
		reason := ""
		if strings.Contains(text, key.text) {
			pts += pointsCompound
			reason = "составная фраза: " + key.text
		}
		for _, syn := range key.compound.Synonyms {
			if strings.Contains(text, syn) {
				pts += pointsCompound
				if reason == "" {
					reason = "синоним фразы: " + syn
				} else {
					reason += ", синоним: " + syn
				}
				break
			}
		}
		return pts, reason
	}

	if utf8.RuneCountInString(key.text) < shortKeyRunes {
		if matchBothBounds(text, key.text) {
			return pointsShort, "точное совпадение: " + key.text
		}
		return 0, ""
	}

	if matchLeftBound(text, key.text) {
		return pointsDirect, "прямое совпадение: " + key.text
	}
	if root := rootOf(key.text); root != key.text && matchLeftBound(text, root) {
		return pointsRoot, "совпадение по корню: " + root + "*"
	}
	for _, syn := range m.dict.Synonyms[key.text] {
		if matchLeftBound(text, syn) {
			return pointsSynonym, "синоним: " + syn + " → " + key.text
		}
	}
	for _, alias := range m.dict.BrandAliases(key.text) {
		if strings.Contains(text, alias) {
			return pointsBrand, "бренд: " + alias
		}
	}
	for _, alias := range m.dict.AbbreviationAliases(key.text) {
		if strings.Contains(text, alias) {
			return pointsAbbrev, "аббревиатура: " + alias
		}
	}
	return 0, ""
}

// rootOf returns the first max(5, len−2) runes of the key.
func rootOf(key string) string {
	runes := []rune(key)
	n := len(runes) - 2
	if n < 5 {
		n = 5
	}
	if n >= len(runes) {
		return key
	}
	return string(runes[:n])
}

func regionMatches(regions []string, tenderRegion string) bool {
	regionLower := strings.ToLower(tenderRegion)
	for _, r := range regions {
		if strings.Contains(regionLower, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

func priceCentralityBonus(price float64, min, max *float64) int {
	if price <= 0 || min == nil || max == nil || *max <= *min {
		return 0
	}
	mid := (*min + *max) / 2
	bonus := int(math.Round((1 - 2*math.Abs(price-mid)/(*max-*min)) * maxPriceBonus))
	if bonus < 0 {
		return 0
	}
	if bonus > maxPriceBonus {
		return maxPriceBonus
	}
	return bonus
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// Word boundaries are checked on runes because the regexp \b class covers
// ASCII only and misses Cyrillic.

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// matchLeftBound reports whether needle occurs in text starting at a word
// boundary (prefix-of-word semantics, morphological suffixes allowed).
func matchLeftBound(text, needle string) bool {
	if needle == "" {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(text[offset:], needle)
		if i < 0 {
			return false
		}
		pos := offset + i
		if pos == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:pos])
		if !isWordRune(prev) {
			return true
		}
		offset = pos + len(needle)
	}
}

// matchBothBounds requires a word boundary on both sides; used for short
// keys where prefix matching would explode into false positives.
func matchBothBounds(text, needle string) bool {
	if needle == "" {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(text[offset:], needle)
		if i < 0 {
			return false
		}
		pos := offset + i
		leftOK := pos == 0
		if !leftOK {
			prev, _ := utf8.DecodeLastRuneInString(text[:pos])
			leftOK = !isWordRune(prev)
		}
		end := pos + len(needle)
		rightOK := end == len(text)
		if !rightOK {
			next, _ := utf8.DecodeRuneInString(text[end:])
			rightOK = !isWordRune(next)
		}
		if leftOK && rightOK {
			return true
		}
		offset = pos + len(needle)
	}
}

// matchKeywordBoundary applies the boundary rule used for exclude keywords:
// both-side anchoring for short keys, left anchoring for longer ones.
func matchKeywordBoundary(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	if utf8.RuneCountInString(keyword) < shortKeyRunes {
		return matchBothBounds(text, keyword)
	}
	return matchLeftBound(text, keyword)
}
