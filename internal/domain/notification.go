package domain

import "time"

// NotificationSource enumerates how a notification was produced.
type NotificationSource string

const (
	SourceAutoMonitoring NotificationSource = "automonitoring"
	SourceInstantSearch  NotificationSource = "instant_search"
)

// Notification is the immutable delivery record for one (user, tender) pair.
// At most one row exists per pair; re-matches are no-ops.
type Notification struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"user_id"`
	FilterID int64 `json:"filter_id"`

	FilterName string `json:"filter_name"`

	TenderNumber   string     `json:"tender_number"`
	TenderName     string     `json:"tender_name"`
	TenderPrice    float64    `json:"tender_price,omitempty"`
	TenderURL      string     `json:"tender_url"`
	TenderRegion   string     `json:"tender_region,omitempty"`
	TenderCustomer string     `json:"tender_customer,omitempty"`

	Score           int      `json:"score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	RedFlags        []string `json:"red_flags,omitempty"`

	PublishedDate      *time.Time `json:"published_date,omitempty"`
	SubmissionDeadline *time.Time `json:"submission_deadline,omitempty"`

	Source            NotificationSource `json:"source"`
	SentAt            time.Time          `json:"sent_at"`
	ExternalMessageID *int64             `json:"external_message_id,omitempty"`
}

// MatchResult is what SmartMatcher returns for a tender that passed every
// hard filter. A nil *MatchResult means hard reject.
type MatchResult struct {
	Score           int      `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
	Reasons         []string `json:"reasons"`
	RedFlags        []string `json:"red_flags,omitempty"`
	AISkipped       bool     `json:"ai_skipped,omitempty"`
}
