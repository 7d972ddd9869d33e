package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// Result is the delivery outcome the monitoring loop switches on.
type Result string

const (
	ResultOK           Result = "ok"
	ResultUserBlocked  Result = "user_blocked"
	ResultBadRecipient Result = "bad_recipient"
	ResultTransient    Result = "transient"
	ResultRateLimited  Result = "rate_limited"
)

const maxTransientRetries = 3

// ChatClient is the transport the sender delivers through.
type ChatClient interface {
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]inlineButton) (int64, error)
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
}

// Sender formats and delivers notifications. It never touches the user's
// daily counter; recording a delivery is the caller's job so that counting
// and sending stay in one transaction boundary.
type Sender struct {
	client    ChatClient
	templates *TemplateEngine
	sleep     func(time.Duration)
}

func NewSender(client ChatClient) *Sender {
	return &Sender{
		client:    client,
		templates: NewTemplateEngine(),
		sleep:     time.Sleep,
	}
}

// Delivery describes the outcome of one send attempt sequence.
type Delivery struct {
	Result    Result
	MessageID *int64
	Err       error
}

// DeliverTender renders the tender notification and sends it to the user's
// chat. Transient failures are retried with exponential backoff; rate limits
// honor the delay the platform returns.
func (s *Sender) DeliverTender(ctx context.Context, chatID int64, n *domain.Notification, sentToday, dailyLimit int, aiResult *AIVerdict) Delivery {
	text, err := s.templates.RenderTender(n, sentToday, dailyLimit, aiResult)
	if err != nil {
		return Delivery{Result: ResultBadRecipient, Err: fmt.Errorf("render notification: %w", err)}
	}

	var buttons [][]inlineButton
	if n.TenderURL != "" {
		buttons = [][]inlineButton{{{Text: "🔗 Открыть тендер", URL: n.TenderURL}}}
	}
	return s.send(ctx, chatID, text, buttons)
}

// DeliverQuotaNotice tells the user their daily notification quota is spent.
func (s *Sender) DeliverQuotaNotice(ctx context.Context, chatID int64, tier domain.Tier, dailyLimit int) Delivery {
	text, err := s.templates.RenderQuotaNotice(tier, dailyLimit)
	if err != nil {
		return Delivery{Result: ResultBadRecipient, Err: fmt.Errorf("render quota notice: %w", err)}
	}
	return s.send(ctx, chatID, text, nil)
}

// DeliverText sends an already formatted HTML message.
func (s *Sender) DeliverText(ctx context.Context, chatID int64, text string) Delivery {
	return s.send(ctx, chatID, text, nil)
}

// DeliverReport uploads a search report file with a short caption.
func (s *Sender) DeliverReport(ctx context.Context, chatID int64, filename string, data []byte, caption string) Delivery {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		err := s.client.SendDocument(ctx, chatID, filename, data, caption)
		if err == nil {
			return Delivery{Result: ResultOK}
		}
		kind, retryAfter := classify(err)
		lastErr = err
		switch kind {
		case ResultRateLimited:
			s.sleep(retryAfter)
		case ResultTransient:
			if attempt < maxTransientRetries {
				s.sleep(backoff(attempt))
			}
		default:
			return Delivery{Result: kind, Err: err}
		}
	}
	return Delivery{Result: ResultTransient, Err: lastErr}
}

func (s *Sender) send(ctx context.Context, chatID int64, text string, buttons [][]inlineButton) Delivery {
	var lastErr error
	rateRetries := 0
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		messageID, err := s.client.SendMessage(ctx, chatID, text, buttons)
		if err == nil {
			return Delivery{Result: ResultOK, MessageID: &messageID}
		}

		kind, retryAfter := classify(err)
		lastErr = err
		switch kind {
		case ResultRateLimited:
			if rateRetries >= maxTransientRetries {
				return Delivery{Result: ResultRateLimited, Err: err}
			}
			rateRetries++
			log.Printf("[Notify] rate limited for chat %d, waiting %s", chatID, retryAfter)
			s.sleep(retryAfter)
			attempt--
		case ResultTransient:
			if attempt < maxTransientRetries {
				s.sleep(backoff(attempt))
			}
		default:
			return Delivery{Result: kind, Err: err}
		}
	}
	return Delivery{Result: ResultTransient, Err: lastErr}
}

// backoff returns 1s, 2s, 4s for attempts 0, 1, 2.
func backoff(attempt int) time.Duration {
	return time.Second << attempt
}
