package domain

import "time"

// Tier enumerates subscription tiers.
type Tier string

const (
	TierTrial   Tier = "trial"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierAdmin   Tier = "admin"
)

// TierLimits are the per-tier caps derived from the subscription.
type TierLimits struct {
	Filters            int
	DailyNotifications int
	DailyAIChecks      int
}

var tierLimits = map[Tier]TierLimits{
	TierTrial:   {Filters: 1, DailyNotifications: 10, DailyAIChecks: 20},
	TierBasic:   {Filters: 5, DailyNotifications: 100, DailyAIChecks: 100},
	TierPremium: {Filters: 20, DailyNotifications: 500, DailyAIChecks: 10000},
	TierAdmin:   {Filters: 100, DailyNotifications: 10000, DailyAIChecks: 100000},
}

// LimitsFor returns the caps for a tier. Unknown tiers fall back to trial.
func LimitsFor(t Tier) TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierTrial]
}

// User is an account identified by its external chat id.
type User struct {
	ID         int64     `json:"id"`
	ExternalID int64     `json:"external_id"` // chat id in the messenger
	Username   string    `json:"username,omitempty"`
	Tier       Tier      `json:"tier"`

	NotificationsSentToday int       `json:"notifications_sent_today"`
	LastNotificationReset  time.Time `json:"last_notification_reset"`

	MonitoringEnabled  bool       `json:"monitoring_enabled"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveSentToday applies the lazy 24h reset: when the reset window has
// elapsed the counter reads as zero. Callers that persist the reset go through
// the repository; this is the read-side view.
func (u *User) EffectiveSentToday(now time.Time) int {
	if now.Sub(u.LastNotificationReset) >= 24*time.Hour {
		return 0
	}
	return u.NotificationsSentToday
}
