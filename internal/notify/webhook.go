package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts notifications as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook with a bounded request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	User               string `json:"user"`
	Link               string `json:"link"`
	EffortMinutes      int    `json:"effortMinutes"`
	TotalEffortMinutes int    `json:"totalEffortMinutes"`
	Timestamp          string `json:"timestamp"`
}

// Broadcast implements Broadcaster.
func (w *Webhook) Broadcast(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		User:               n.User,
		Link:               n.Link,
		EffortMinutes:      n.EffortMinutes,
		TotalEffortMinutes: n.TotalEffortMinutes,
		Timestamp:          n.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
