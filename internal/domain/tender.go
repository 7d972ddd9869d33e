package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TenderType enumerates the procurement object kinds on the portal.
type TenderType string

const (
	TenderGoods    TenderType = "goods"
	TenderServices TenderType = "services"
	TenderWorks    TenderType = "works"
)

// LawType enumerates the procurement laws a filter can target.
type LawType string

const (
	Law44FZ LawType = "44-FZ"
	Law223FZ LawType = "223-FZ"
	LawBoth  LawType = "both"
)

// PurchaseStage enumerates the lifecycle stages a filter can target.
type PurchaseStage string

const (
	StageSubmission PurchaseStage = "submission"
	StageArchive    PurchaseStage = "archive"
	StageAny        PurchaseStage = "any"
)

// Tender is a procurement notice as discovered from the portal RSS feed and
// optionally enriched from its HTML card. Identified by the portal
// registration number, which is globally unique.
type Tender struct {
	Number        string     `json:"number"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	URL           string     `json:"url"`
	PublishedDate *time.Time `json:"published_date,omitempty"`

	// Fields below come from card enrichment; zero values mean "unknown".
	Price              float64    `json:"price,omitempty"`
	CustomerName       string     `json:"customer_name,omitempty"`
	CustomerRegion     string     `json:"customer_region,omitempty"`
	CustomerCity       string     `json:"customer_city,omitempty"`
	CustomerAddress    string     `json:"customer_address,omitempty"`
	SubmissionDeadline *time.Time `json:"submission_deadline,omitempty"`

	Type     TenderType `json:"tender_type,omitempty"`
	Enriched bool       `json:"enriched,omitempty"`
}

// SearchableText returns the lowercased text SmartMatcher scores against:
// name, description and customer name concatenated.
func (t *Tender) SearchableText() string {
	return strings.ToLower(t.Name + " " + t.Description + " " + t.CustomerName)
}

// IsArchival reports whether the submission window has already closed.
// Returns false when the deadline is unknown.
func (t *Tender) IsArchival(now time.Time) bool {
	return t.SubmissionDeadline != nil && t.SubmissionDeadline.Before(now)
}

// ContentHash returns a stable hash over the fields used in scoring, so that
// an unchanged tender can skip re-enrichment and re-scoring (tender_cache).
func (t *Tender) ContentHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.2f|%s|%s", t.Name, t.Description, t.Price, t.CustomerName, t.CustomerRegion)
	if t.SubmissionDeadline != nil {
		fmt.Fprint(h, t.SubmissionDeadline.UTC().Format(time.RFC3339))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// PriceFormatted renders the price in the portal's display convention
// ("2 500 000 ₽") or an empty string when unknown.
func (t *Tender) PriceFormatted() string {
	if t.Price <= 0 {
		return ""
	}
	s := fmt.Sprintf("%.0f", t.Price)
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
