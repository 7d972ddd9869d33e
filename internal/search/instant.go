// Package search runs the one-shot search pipeline over a persistent filter:
// portal RSS queries per transliteration variant, cheap pre-filters, scoring,
// card enrichment and the optional semantic relevance gate. The monitoring
// loop reuses the same pipeline with a smaller result cap.
package search

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/procurewatch/tender-monitor/internal/ai"
	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/matching"
	"github.com/procurewatch/tender-monitor/internal/portal"
)

const (
	// Fallback result cap when neither the config nor Options set one.
	defaultMaxTenders = 30
	// Every variant query over-fetches against the final cap because dedupe
	// and the pre-filters thin the result set.
	variantFetchFactor = 1.5
	// Concurrent portal calls per search; the portal client itself holds the
	// process-wide cap.
	variantConcurrency = 4
	// Scores at or above this skip the semantic check.
	aiSkipScore = 85
)

// Portal is the slice of the portal client the searcher uses.
type Portal interface {
	SearchRSS(ctx context.Context, q portal.SearchQuery) ([]domain.Tender, error)
	EnrichFromCard(ctx context.Context, t domain.Tender) domain.Tender
}

// Relevance is the semantic gate. A nil Relevance disables the gate.
type Relevance interface {
	Check(ctx context.Context, req ai.CheckRequest) ai.CheckResult
}

// TenderStore is the durable tender cache shared across cycles and restarts.
// Get returns only snapshots still inside the cache TTL; Upsert reports
// whether the scored content changed since the last sighting.
type TenderStore interface {
	Get(ctx context.Context, tenderNumber string) (*domain.Tender, error)
	Upsert(ctx context.Context, t *domain.Tender) (bool, error)
}

// Options tune one pipeline run.
type Options struct {
	// MaxTenders caps the final result; 0 selects the default.
	MaxTenders int
	// UseAI enables the relevance gate for survivors scoring below 85.
	UseAI bool
	// UserID and Tier feed AI quota accounting; UserID 0 skips accounting.
	UserID int64
	Tier   domain.Tier
}

// Match is one tender that survived the full pipeline.
type Match struct {
	Tender domain.Tender      `json:"tender"`
	Result domain.MatchResult `json:"result"`
	AI     *ai.CheckResult    `json:"ai,omitempty"`
}

// Searcher executes the instant-search pipeline.
type Searcher struct {
	portal     Portal
	matcher    *matching.Matcher
	checker    Relevance
	store      TenderStore
	cache      *enrichCache
	defaultMax int
	now        func() time.Time
}

func New(p Portal, m *matching.Matcher, checker Relevance) *Searcher {
	return &Searcher{
		portal:     p,
		matcher:    m,
		checker:    checker,
		cache:      newEnrichCache(enrichCacheSize),
		defaultMax: defaultMaxTenders,
		now:        time.Now,
	}
}

// SetMaxTenders sets the per-search result cap applied when Options leaves
// MaxTenders unset (the max_tenders_per_poll setting).
func (s *Searcher) SetMaxTenders(n int) {
	if n > 0 {
		s.defaultMax = n
	}
}

// SetTenderCache attaches the persistent tender cache: a fresh hit skips the
// card fetch, and successful enrichments are written back for later cycles.
func (s *Searcher) SetTenderCache(store TenderStore) {
	s.store = store
}

// Run executes the pipeline for one filter. Hard errors (portal completely
// unreachable, contract violations) surface; per-item parse issues are
// skipped.
func (s *Searcher) Run(ctx context.Context, f *domain.Filter, opts Options) ([]Match, error) {
	if len(f.Keywords) == 0 {
		return nil, domain.ErrEmptyKeywords
	}
	maxTenders := opts.MaxTenders
	if maxTenders <= 0 {
		maxTenders = s.defaultMax
	}

	candidates, err := s.collect(ctx, f, maxTenders)
	if err != nil {
		return nil, err
	}

	now := s.now()
	prefiltered := candidates[:0]
	for _, t := range candidates {
		if s.passesCheapFilters(&t, f, now) {
			prefiltered = append(prefiltered, t)
		}
	}

	// Pre-score against RSS-only data: region is unknown at this point, so a
	// region-restricted filter would reject everything.
	preFilter := f.WithoutRegions()
	survivors := make([]domain.Tender, 0, len(prefiltered))
	for _, t := range prefiltered {
		res, err := s.matcher.Match(&t, preFilter, now)
		if err != nil {
			return nil, err
		}
		if res == nil || res.Score < 1 {
			continue
		}
		survivors = append(survivors, t)
	}

	matches := make([]Match, 0, len(survivors))
	for _, t := range survivors {
		enriched := s.enrich(ctx, t)
		res, err := s.matcher.Match(&enriched, f, now)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}

		m := Match{Tender: enriched, Result: *res}
		if !s.applyRelevanceGate(ctx, f, &m, opts) {
			continue
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Result.Score > matches[j].Result.Score
	})
	if len(matches) > maxTenders {
		matches = matches[:maxTenders]
	}
	return matches, nil
}

// collect fans out one RSS query per keyword variant and dedupes by tender
// number, keeping the first occurrence.
func (s *Searcher) collect(ctx context.Context, f *domain.Filter, maxTenders int) ([]domain.Tender, error) {
	perVariant := int(float64(maxTenders) * variantFetchFactor)

	var tenderType domain.TenderType
	if len(f.TenderTypes) == 1 {
		tenderType = f.TenderTypes[0]
	}

	type variantResult struct {
		order   int
		tenders []domain.Tender
	}

	var queries []portal.SearchQuery
	for _, keyword := range f.Keywords {
		for _, variant := range portal.SearchVariants(keyword) {
			queries = append(queries, portal.SearchQuery{
				Keyword:    variant,
				PriceMin:   f.PriceMin,
				PriceMax:   f.PriceMax,
				Regions:    f.Regions,
				MaxResults: perVariant,
				TenderType: tenderType,
				LawType:    f.LawType,
				Stage:      f.EffectiveStage(),
			})
		}
	}

	results := make([]variantResult, 0, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(variantConcurrency)
	resCh := make(chan variantResult, len(queries))
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			tenders, err := s.portal.SearchRSS(gctx, q)
			if err != nil {
				// One failing variant does not sink the search; the other
				// variants of the same keyword usually cover it.
				log.Printf("[Search] variant %q failed: %v", q.Keyword, err)
				return nil
			}
			resCh <- variantResult{order: i, tenders: tenders}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(resCh)
	for r := range resCh {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].order < results[j].order })

	seen := make(map[string]struct{})
	var out []domain.Tender
	for _, r := range results {
		for _, t := range r.tenders {
			if _, dup := seen[t.Number]; dup {
				continue
			}
			seen[t.Number] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}

// passesCheapFilters applies the checks that need no enrichment and no
// scoring: exclude keywords, keyword presence, deadline sanity and the
// customer restriction.
func (s *Searcher) passesCheapFilters(t *domain.Tender, f *domain.Filter, now time.Time) bool {
	text := t.SearchableText()

	for _, exclude := range f.ExcludeKeywords {
		if ex := strings.ToLower(strings.TrimSpace(exclude)); ex != "" && strings.Contains(text, ex) {
			return false
		}
	}

	// The portal's RSS morphology returns items whose title does not contain
	// the searched keyword at all; require at least a substring hit on some
	// keyword before spending a card fetch.
	anyKeyword := false
	for _, kw := range f.Keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if strings.Contains(text, k) || strings.Contains(text, strings.ToLower(portal.Transliterate(k))) {
			anyKeyword = true
			break
		}
	}
	if !anyKeyword {
		return false
	}

	if t.SubmissionDeadline != nil {
		if f.EffectiveStage() == domain.StageSubmission && t.SubmissionDeadline.Before(now) {
			return false
		}
		if f.MinDeadlineDays > 0 {
			minDeadline := now.AddDate(0, 0, f.MinDeadlineDays)
			if t.SubmissionDeadline.Before(minDeadline) {
				return false
			}
		}
	}

	if len(f.CustomerKeywords) > 0 && t.CustomerName != "" {
		customer := strings.ToLower(t.CustomerName)
		found := false
		for _, ck := range f.CustomerKeywords {
			if c := strings.ToLower(strings.TrimSpace(ck)); c != "" && strings.Contains(customer, c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// enrich resolves the card fields for a tender: session cache first, then the
// durable tender cache, and only then the card fetch itself. Fresh durable
// hits carry content unchanged since the last sighting, so refetching the
// card would reproduce the same snapshot.
func (s *Searcher) enrich(ctx context.Context, t domain.Tender) domain.Tender {
	if cached, ok := s.cache.get(t.Number); ok {
		return cached
	}
	if s.store != nil {
		cached, err := s.store.Get(ctx, t.Number)
		if err != nil {
			log.Printf("[Search] tender cache read %s: %v", t.Number, err)
		} else if cached != nil {
			merged := mergeCached(t, cached)
			s.cache.put(t.Number, merged)
			return merged
		}
	}
	enriched := s.portal.EnrichFromCard(ctx, t)
	if enriched.Enriched {
		s.cache.put(t.Number, enriched)
		if s.store != nil {
			if _, err := s.store.Upsert(ctx, &enriched); err != nil {
				log.Printf("[Search] tender cache write %s: %v", t.Number, err)
			}
		}
	}
	return enriched
}

// mergeCached overlays the cached card fields onto the RSS record. The
// description is not persisted and always comes from the feed.
func mergeCached(t domain.Tender, cached *domain.Tender) domain.Tender {
	if cached.Name != "" {
		t.Name = cached.Name
	}
	if cached.Price > 0 {
		t.Price = cached.Price
	}
	if cached.CustomerName != "" {
		t.CustomerName = cached.CustomerName
	}
	if cached.CustomerRegion != "" {
		t.CustomerRegion = cached.CustomerRegion
	}
	if cached.SubmissionDeadline != nil {
		t.SubmissionDeadline = cached.SubmissionDeadline
	}
	if t.PublishedDate == nil {
		t.PublishedDate = cached.PublishedDate
	}
	t.Enriched = true
	return t
}

// applyRelevanceGate runs the semantic check unless the score is high enough
// to skip it. Returns false when the gate rejects the tender.
func (s *Searcher) applyRelevanceGate(ctx context.Context, f *domain.Filter, m *Match, opts Options) bool {
	if !opts.UseAI || s.checker == nil {
		return true
	}
	if m.Result.Score >= aiSkipScore {
		m.Result.AISkipped = true
		return true
	}

	verdict := s.checker.Check(ctx, ai.CheckRequest{
		TenderName:        m.Tender.Name,
		TenderDescription: m.Tender.Description,
		FilterIntent:      f.AIIntent,
		FilterKeywords:    f.Keywords,
		TenderTypes:       f.TenderTypes,
		UserID:            opts.UserID,
		Tier:              opts.Tier,
	})
	if !verdict.IsRelevant {
		log.Printf("[Search] AI rejected tender %s (%d%%): %s", m.Tender.Number, verdict.Confidence, verdict.Reason)
		return false
	}
	m.AI = &verdict
	return true
}
