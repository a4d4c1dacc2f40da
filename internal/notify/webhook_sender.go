package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSender posts notifications to a per-tenant webhook URL.
type WebhookSender struct {
	urls       func(orgID string) (string, bool)
	httpClient *http.Client
}

// NewWebhookSender creates a sender. urls maps a tenant to its notification
// endpoint; tenants without one are skipped silently.
func NewWebhookSender(urls func(orgID string) (string, bool)) *WebhookSender {
	return &WebhookSender{
		urls:       urls,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, orgID string, n *Notification) error {
	url, ok := s.urls(orgID)
	if !ok {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
