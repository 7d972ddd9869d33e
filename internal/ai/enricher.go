package ai

import (
	"context"
	"time"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// Enricher bundles the extraction and summary passes run when a delivered
// tender is exported for a premium user. Both passes degrade to their
// regex/truncation fallbacks when the model is unavailable.
type Enricher struct {
	extractor  *DocumentExtractor
	summarizer *Summarizer
}

// NewEnricher builds an Enricher on top of the shared LLM client. rdb may be
// nil; the summarizer then runs without its verdict cache.
func NewEnricher(extractor *DocumentExtractor, summarizer *Summarizer) *Enricher {
	return &Enricher{extractor: extractor, summarizer: summarizer}
}

// Enrich extracts structured fields from the tender's available text and
// fills the summary from the summarizer when the extraction pass left it
// empty. Never returns nil.
func (e *Enricher) Enrich(ctx context.Context, text string, t *domain.Tender, tier domain.Tier) *DocumentExtraction {
	ectx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	d, _ := e.extractor.Extract(ectx, text, t, tier)
	if d == nil {
		d = &DocumentExtraction{}
	}
	if d.Summary == "" && e.summarizer != nil {
		if s, ok := e.summarizer.Summarize(ectx, text, t, tier); ok {
			d.Summary = s
		}
	}
	return d
}
