// Package alert notifies an operator when a processing cycle fails.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

const (
	prefix     = "corroborate: "
	maxMessage = 300
)

// Sink delivers operator alerts
type Sink interface {
	Alert(ctx context.Context, message string) error
}

// Format prefixes and truncates an alert message
func Format(message string) string {
	msg := prefix + strings.TrimSpace(message)
	r := []rune(msg)
	if len(r) > maxMessage {
		return string(r[:maxMessage-3]) + "..."
	}
	return msg
}

// New builds the configured sink. Twilio credentials come from
// TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN.
func New(cfg model.AlertConfig, logger *log.Logger) (Sink, error) {
	logger = logging.Or(logger)
	switch strings.ToLower(cfg.Kind) {
	case "", "log":
		return NewLogSink(logger), nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("alert.webhook_url is required for webhook alerts")
		}
		return NewWebhookSink(cfg.WebhookURL, nil), nil
	case "twilio":
		sid, token := os.Getenv("TWILIO_ACCOUNT_SID"), os.Getenv("TWILIO_AUTH_TOKEN")
		if sid == "" || token == "" || cfg.TwilioFrom == "" || cfg.TwilioTo == "" {
			return nil, fmt.Errorf("twilio alerts need TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, alert.twilio_from and alert.twilio_to")
		}
		return NewTwilioSink(sid, token, cfg.TwilioFrom, cfg.TwilioTo, nil), nil
	default:
		return nil, fmt.Errorf("unknown alert kind: %s (supported: log, webhook, twilio)", cfg.Kind)
	}
}

// LogSink writes alerts to the log at error level
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a logging alert sink
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logging.Or(logger)}
}

// Alert logs the message
func (s *LogSink) Alert(ctx context.Context, message string) error {
	s.logger.Error("alert", "message", Format(message))
	return nil
}

// WebhookSink POSTs {"text": message} to a URL (Slack and compatible hooks)
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink; a nil client gets a 10s timeout
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, client: client}
}

// Alert posts the message
func (s *WebhookSink) Alert(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"text": Format(message)})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(s.client, req)
}

// TwilioSink sends alerts as SMS through the Twilio REST API
type TwilioSink struct {
	baseURL    string
	accountSID string
	authToken  string
	from, to   string
	client     *http.Client
}

// NewTwilioSink creates an SMS sink; a nil client gets a 10s timeout
func NewTwilioSink(accountSID, authToken, from, to string, client *http.Client) *TwilioSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TwilioSink{
		baseURL:    "https://api.twilio.com",
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		to:         to,
		client:     client,
	}
}

// Alert sends the message as an SMS
func (s *TwilioSink) Alert(ctx context.Context, message string) error {
	form := url.Values{}
	form.Set("From", s.from)
	form.Set("To", s.to)
	form.Set("Body", Format(message))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	return do(s.client, req)
}

func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
