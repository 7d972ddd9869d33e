package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/pkg/httputil"
	"github.com/procurewatch/tender-monitor/internal/repository/postgres"
)

// UserStore is the user-side persistence the webhook needs.
type UserStore interface {
	SetTier(ctx context.Context, externalID int64, tier domain.Tier, expiry *time.Time) error
	GetByExternalID(ctx context.Context, externalID int64) (*domain.User, error)
}

// ActionLog records billing events in the audit log. Optional.
type ActionLog interface {
	Record(ctx context.Context, userID int64, action string, details map[string]any) error
}

// PaymentWebhook handles the billing provider's subscription callbacks.
type PaymentWebhook struct {
	token   string
	users   UserStore
	actions ActionLog
}

func NewPaymentWebhook(token string, users UserStore, actions ActionLog) *PaymentWebhook {
	return &PaymentWebhook{token: token, users: users, actions: actions}
}

// paymentEvent is the provider's notification payload.
type paymentEvent struct {
	ExternalID int64  `json:"external_id"`
	Tier       string `json:"tier"`
	ExpiresAt  string `json:"expires_at,omitempty"` // RFC 3339
	PaymentID  string `json:"payment_id,omitempty"`
}

var validTiers = map[domain.Tier]bool{
	domain.TierTrial:   true,
	domain.TierBasic:   true,
	domain.TierPremium: true,
}

// Handle validates the shared token and applies the tier change.
//
//	POST /payment/webhook
func (p *PaymentWebhook) Handle(w http.ResponseWriter, r *http.Request) {
	if p.token == "" {
		httputil.Error(w, http.StatusServiceUnavailable, "webhook not configured")
		return
	}
	got := r.Header.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(p.token)) != 1 {
		httputil.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var event paymentEvent
	if !httputil.Decode(w, r, &event) {
		return
	}
	if event.ExternalID == 0 {
		httputil.BadRequest(w, "external_id is required")
		return
	}
	tier := domain.Tier(event.Tier)
	if !validTiers[tier] {
		httputil.BadRequest(w, "unknown tier: "+event.Tier)
		return
	}

	var expiry *time.Time
	if event.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, event.ExpiresAt)
		if err != nil {
			httputil.BadRequest(w, "invalid expires_at: "+err.Error())
			return
		}
		expiry = &parsed
	}

	if err := p.users.SetTier(r.Context(), event.ExternalID, tier, expiry); err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			httputil.NotFound(w, "user not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	log.Printf("[Webhook] user %d upgraded to %s (payment %s)", event.ExternalID, tier, event.PaymentID)
	if p.actions != nil {
		if u, err := p.users.GetByExternalID(r.Context(), event.ExternalID); err == nil {
			details := map[string]any{"tier": string(tier), "payment_id": event.PaymentID}
			if err := p.actions.Record(r.Context(), u.ID, "subscription_changed", details); err != nil {
				log.Printf("[Webhook] audit record: %v", err)
			}
		}
	}

	httputil.OK(w, map[string]any{"status": "ok"})
}
