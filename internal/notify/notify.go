// Package notify delivers verification codes to subjects.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"aegis/pkg/email"
	"aegis/pkg/platform/privacy"
)

const defaultTimeout = 10 * time.Second

// Message is one code delivery.
type Message struct {
	Destination string
	Recipient   string
	Purpose     string
	Code        string
	ExpiresAt   time.Time
}

// Console logs deliveries for local development. The code is logged so a
// developer can complete the flow.
type Console struct {
	logger *slog.Logger
}

func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Send(ctx context.Context, msg Message) error {
	c.logger.InfoContext(ctx, "verification code issued",
		"destination", privacy.MaskEmail(msg.Destination),
		"purpose", msg.Purpose,
		"code", msg.Code,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}

// Webhook posts deliveries to an email provider endpoint, throttled by a
// token bucket.
type Webhook struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewWebhook builds a webhook notifier. ratePerSecond <= 0 disables throttling.
func NewWebhook(url, token string, ratePerSecond float64, burst int) *Webhook {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Webhook{
		URL:        url,
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type webhookPayload struct {
	To        string `json:"to"`
	Name      string `json:"name"`
	Template  string `json:"template"`
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"`
}

// Send does not log the code.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if w.URL == "" {
		return fmt.Errorf("notify: webhook URL not configured")
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: throttled: %w", err)
	}

	name := msg.Recipient
	if name == "" {
		name = email.DisplayName(msg.Destination)
	}
	raw, err := json.Marshal(webhookPayload{
		To:        msg.Destination,
		Name:      name,
		Template:  "verification_" + msg.Purpose,
		Code:      msg.Code,
		ExpiresAt: msg.ExpiresAt.Unix(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
