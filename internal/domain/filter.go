package domain

import (
	"errors"
	"time"
)

// ErrEmptyKeywords is returned when a filter without positive keywords reaches
// a stage that requires them. Such a filter violates the creation contract.
var ErrEmptyKeywords = errors.New("filter has no keywords")

// Filter is a user's saved search.
type Filter struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`

	Name            string   `json:"name"`
	Keywords        []string `json:"keywords"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`

	PriceMin *float64 `json:"price_min,omitempty"`
	PriceMax *float64 `json:"price_max,omitempty"`

	Regions     []string     `json:"regions,omitempty"`
	TenderTypes []TenderType `json:"tender_types,omitempty"`
	LawType     LawType      `json:"law_type,omitempty"`
	Stage       PurchaseStage `json:"purchase_stage,omitempty"`

	OKPD2Codes       []string `json:"okpd2_codes,omitempty"`
	MinDeadlineDays  int      `json:"min_deadline_days,omitempty"`
	CustomerKeywords []string `json:"customer_keywords,omitempty"`
	PublicationDays  int      `json:"publication_days,omitempty"`

	IsActive bool   `json:"is_active"`
	AIIntent string `json:"ai_intent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the creation-time invariants.
func (f *Filter) Validate() error {
	if len(f.Keywords) == 0 {
		return ErrEmptyKeywords
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return errors.New("price_min exceeds price_max")
	}
	return nil
}

// EffectiveStage defaults the stage to submission when unset.
func (f *Filter) EffectiveStage() PurchaseStage {
	if f.Stage == "" {
		return StageSubmission
	}
	return f.Stage
}

// GoodsOnly reports whether the filter restricts matches to goods only.
func (f *Filter) GoodsOnly() bool {
	return len(f.TenderTypes) == 1 && f.TenderTypes[0] == TenderGoods
}

// WithoutRegions returns a copy with the regions cleared. Used for pre-scoring
// against RSS-only data, where the tender region is not yet known.
func (f *Filter) WithoutRegions() *Filter {
	c := *f
	c.Regions = nil
	return &c
}
