// Package notify delivers tender notifications through the chat channel and
// exports matched tenders to the user's spreadsheet. Delivery errors are
// translated into a small taxonomy the monitoring loop acts on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/procurewatch/tender-monitor/internal/config"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramClient is a minimal Telegram Bot API client covering the two
// operations the sender needs.
type TelegramClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramClient builds a TelegramClient from configuration.
func NewTelegramClient(cfg config.BotConfig) *TelegramClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &TelegramClient{
		token:      cfg.Token,
		baseURL:    telegramAPIBase,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// inlineKeyboard is the reply markup sent with tender notifications.
type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// SendMessage delivers an HTML-formatted message and returns the message id.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]inlineButton) (int64, error) {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = inlineKeyboard{InlineKeyboard: buttons}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, &DeliveryError{Kind: ResultBadRecipient, Err: fmt.Errorf("marshal sendMessage: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return 0, &DeliveryError{Kind: ResultTransient, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	apiResp, err := c.do(req)
	if err != nil {
		return 0, err
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(apiResp.Result, &result); err != nil {
		return 0, &DeliveryError{Kind: ResultTransient, Err: fmt.Errorf("parse sendMessage result: %w", err)}
	}
	return result.MessageID, nil
}

// SendDocument uploads a file (the HTML search report) to the chat.
func (c *TelegramClient) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return &DeliveryError{Kind: ResultTransient, Err: err}
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return &DeliveryError{Kind: ResultTransient, Err: err}
		}
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return &DeliveryError{Kind: ResultTransient, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &DeliveryError{Kind: ResultTransient, Err: err}
	}
	if err := w.Close(); err != nil {
		return &DeliveryError{Kind: ResultTransient, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("sendDocument"), &buf)
	if err != nil {
		return &DeliveryError{Kind: ResultTransient, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, err = c.do(req)
	return err
}

func (c *TelegramClient) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// do executes the request and classifies failures into the delivery taxonomy.
func (c *TelegramClient) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeliveryError{Kind: ResultTransient, Err: err}
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &DeliveryError{Kind: ResultTransient, Err: fmt.Errorf("decode bot api response: %w", err)}
	}
	if apiResp.OK {
		return &apiResp, nil
	}

	return nil, classifyAPIError(&apiResp)
}

func classifyAPIError(resp *apiResponse) *DeliveryError {
	err := fmt.Errorf("bot api error %d: %s", resp.ErrorCode, resp.Description)
	desc := strings.ToLower(resp.Description)

	switch {
	case resp.ErrorCode == http.StatusForbidden:
		return &DeliveryError{Kind: ResultUserBlocked, Err: err}
	case resp.ErrorCode == http.StatusTooManyRequests:
		retryAfter := 5 * time.Second
		if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return &DeliveryError{Kind: ResultRateLimited, RetryAfter: retryAfter, Err: err}
	case resp.ErrorCode == http.StatusBadRequest &&
		(strings.Contains(desc, "chat not found") || strings.Contains(desc, "chat_id is empty") ||
			strings.Contains(desc, "user not found")):
		return &DeliveryError{Kind: ResultBadRecipient, Err: err}
	case resp.ErrorCode >= 500:
		return &DeliveryError{Kind: ResultTransient, Err: err}
	default:
		// Other 4xx: malformed message content, treated as a drop.
		return &DeliveryError{Kind: ResultBadRecipient, Err: err}
	}
}

// DeliveryError carries the delivery taxonomy classification.
type DeliveryError struct {
	Kind       Result
	RetryAfter time.Duration
	Err        error
}

func (e *DeliveryError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }

func (e *DeliveryError) Unwrap() error { return e.Err }

// classify extracts the taxonomy kind from an error returned by the chat
// client. Unknown errors count as transient.
func classify(err error) (Result, time.Duration) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind, de.RetryAfter
	}
	return ResultTransient, 0
}
